package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"flowbridge/internal/apiclient"
	"flowbridge/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocialAPI struct {
	getFunc  func(path string) (*apiclient.Response, error)
	postFunc func(path string, body interface{}) (*apiclient.Response, error)
}

func (f *fakeSocialAPI) Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error) {
	return f.getFunc(path)
}

func (f *fakeSocialAPI) Post(ctx context.Context, path string, body interface{}) (*apiclient.Response, error) {
	return f.postFunc(path, body)
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestRegisterSocialTools(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterSocialTools(reg, &fakeSocialAPI{}))

	assert.True(t, reg.Has("social-get-accounts"))
	assert.True(t, reg.Has("social-create-post"))

	// Registering twice collides on the tool names.
	assert.Error(t, RegisterSocialTools(reg, &fakeSocialAPI{}))
}

func TestGetAccounts(t *testing.T) {
	api := &fakeSocialAPI{getFunc: func(path string) (*apiclient.Response, error) {
		assert.Equal(t, "/api/v1/service/social/get-accounts", path)
		return &apiclient.Response{Data: json.RawMessage(`{"accounts":[{"id":"li-1","network":"linkedin"}]}`)}, nil
	}}
	reg := registry.New()
	require.NoError(t, RegisterSocialTools(reg, api))

	result, err := reg.Execute(context.Background(), "social-get-accounts", nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "linkedin")
}

func TestGetAccounts_APIFailure(t *testing.T) {
	api := &fakeSocialAPI{getFunc: func(path string) (*apiclient.Response, error) {
		return nil, errors.New("gateway timeout")
	}}
	reg := registry.New()
	require.NoError(t, RegisterSocialTools(reg, api))

	result, err := reg.Execute(context.Background(), "social-get-accounts", nil)
	require.NoError(t, err, "remote failures stay inside the result")
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "gateway timeout")
}

func TestCreatePost(t *testing.T) {
	var sent interface{}
	api := &fakeSocialAPI{postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
		assert.Equal(t, "/api/v1/service/social/create", path)
		sent = body
		return &apiclient.Response{Data: json.RawMessage(`{"id":"post-9","state":"draft"}`)}, nil
	}}
	reg := registry.New()
	require.NoError(t, RegisterSocialTools(reg, api))

	args := map[string]interface{}{"content": "hello world"}
	result, err := reg.Execute(context.Background(), "social-create-post", args)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "post-9")
	assert.Equal(t, args, sent)
}

func TestCreatePost_RequiresContent(t *testing.T) {
	called := false
	api := &fakeSocialAPI{postFunc: func(path string, body interface{}) (*apiclient.Response, error) {
		called = true
		return &apiclient.Response{Data: json.RawMessage(`{}`)}, nil
	}}
	reg := registry.New()
	require.NoError(t, RegisterSocialTools(reg, api))

	_, err := reg.Execute(context.Background(), "social-create-post", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content")
	assert.False(t, called)
}
