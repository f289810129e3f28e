package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

func roleApp(principal *Principal, allowed ...domain.StaffRole) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.ToDomainError(err).HTTPStatus).SendString(err.Error())
		},
	})
	app.Get("/", func(c *fiber.Ctx) error {
		if principal != nil {
			c.Locals(principalKey, principal)
		}
		return c.Next()
	}, RequireStaffRole(allowed...), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestRequireStaffRole(t *testing.T) {
	admin := domain.StaffRoleAdmin
	agent := domain.StaffRoleAgent

	tests := []struct {
		name      string
		principal *Principal
		allowed   []domain.StaffRole
		want      int
	}{
		{"anonymous", nil, nil, http.StatusForbidden},
		{"end user", &Principal{SubjectID: "u-1", SubjectType: domain.SubjectTypeUser}, nil, http.StatusForbidden},
		{"any staff", &Principal{SubjectID: "s-1", SubjectType: domain.SubjectTypeStaff, Role: &agent}, nil, http.StatusNoContent},
		{"staff without role", &Principal{SubjectID: "s-1", SubjectType: domain.SubjectTypeStaff}, []domain.StaffRole{admin}, http.StatusForbidden},
		{"wrong role", &Principal{SubjectID: "s-1", SubjectType: domain.SubjectTypeStaff, Role: &agent}, []domain.StaffRole{admin}, http.StatusForbidden},
		{"allowed role", &Principal{SubjectID: "s-1", SubjectType: domain.SubjectTypeStaff, Role: &admin}, []domain.StaffRole{admin, domain.StaffRoleTeamLead}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := roleApp(tt.principal, tt.allowed...).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
