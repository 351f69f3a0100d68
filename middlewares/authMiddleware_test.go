package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/quantabooks/crm_backend/utils"
)

func authTestRouter(capture *struct {
	businessId string
	userId     int
	token      string
}) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware())
	router.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		capture.businessId, _ = utils.GetBusinessIdFromContext(ctx)
		capture.userId, _ = utils.GetUserIdFromContext(ctx)
		capture.token, _ = utils.GetTokenFromContext(ctx)
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthMiddleware_ExtractsClaimsIntoContext(t *testing.T) {
	token, err := utils.JwtGenerate(42, "biz-auth-test")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	var captured struct {
		businessId string
		userId     int
		token      string
	}
	router := authTestRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.businessId != "biz-auth-test" {
		t.Fatalf("expected business id from claims, got %q", captured.businessId)
	}
	if captured.userId != 42 {
		t.Fatalf("expected user id 42 from claims, got %d", captured.userId)
	}
	if captured.token != token {
		t.Fatalf("expected raw token in context")
	}
}

func TestAuthMiddleware_RejectsBadToken(t *testing.T) {
	var captured struct {
		businessId string
		userId     int
		token      string
	}
	router := authTestRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_NoHeaderPassesThroughAnonymously(t *testing.T) {
	var captured struct {
		businessId string
		userId     int
		token      string
	}
	router := authTestRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through 200, got %d", rec.Code)
	}
	if captured.businessId != "" || captured.userId != 0 {
		t.Fatalf("anonymous request must carry no identity, got %q/%d", captured.businessId, captured.userId)
	}
}
