package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"nurse allowed", []string{RoleNurse}, http.StatusOK},
		{"admin always allowed", []string{RoleAdmin}, http.StatusOK},
		{"other role denied", []string{"receptionist"}, http.StatusForbidden},
		{"no roles denied", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithUser(req.Context(), "user-1", tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := RequireRole(RoleNurse)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})
			err := h(c)

			if tt.want == http.StatusOK {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.want {
				t.Errorf("expected HTTP %d, got %v", tt.want, err)
			}
		})
	}
}
