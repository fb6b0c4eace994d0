package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedeemHandlersRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &HTTPHandler{}

	tests := []struct {
		name    string
		handler gin.HandlerFunc
	}{
		{name: "兑换", handler: h.Redeem},
		{name: "创建兑换码", handler: h.CreateRedeemCode},
		{name: "批量生成兑换码", handler: h.GenerateRedeemCodes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
			c.Request.Header.Set("Content-Type", "application/json")

			tt.handler(c)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}
