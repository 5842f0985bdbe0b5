// Package response 统一响应格式单元测试
package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTest 创建测试用的 Gin 上下文
func setupTest() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// parseResponse 解析响应为 Response 结构
func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// ==================== Success 测试 ====================

func TestSuccess(t *testing.T) {
	c, w := setupTest()

	Success(c, map[string]interface{}{"propertyId": 7, "month": "2025-07"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "success", resp.Message)
	assert.NotNil(t, resp.Data)
}

func TestSuccess_WithNilData(t *testing.T) {
	c, w := setupTest()

	Success(c, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"data"`)
}

func TestAccepted(t *testing.T) {
	c, w := setupTest()

	Accepted(c, gin.H{"jobs": 2})

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "accepted", resp.Message)
}

// ==================== Error 测试 ====================

func TestError(t *testing.T) {
	c, w := setupTest()

	Error(c, http.StatusNotFound, 8000, "价格日历不存在")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 8000, resp.Code)
	assert.Equal(t, "价格日历不存在", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestShortcutErrors(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *gin.Context)
		wantStatus int
		wantCode   int
		wantMsg    string
	}{
		{"BadRequest", func(c *gin.Context) { BadRequest(c, "无效的入住日期") }, http.StatusBadRequest, 400, "无效的入住日期"},
		{"NotFound default", func(c *gin.Context) { NotFound(c, "") }, http.StatusNotFound, 404, "not found"},
		{"NotFound custom", func(c *gin.Context) { NotFound(c, "房源不存在") }, http.StatusNotFound, 404, "房源不存在"},
		{"InternalError default", func(c *gin.Context) { InternalError(c, "") }, http.StatusInternalServerError, 500, "internal server error"},
		{"TooManyRequests default", func(c *gin.Context) { TooManyRequests(c, "") }, http.StatusTooManyRequests, 429, "too many requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTest()
			tt.call(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}
