package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/internal/repository"
)

func auditRouter(t *testing.T, status int) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewUserRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.POST("/enrollments",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s1"})
		},
		Audit(repo, models.AuditActionEnroll, "enrollments"),
		func(c *gin.Context) { c.JSON(status, gin.H{}) },
	)
	return r, mock
}

func TestAuditRecordsSuccessfulRequest(t *testing.T) {
	r, mock := auditRouter(t, http.StatusCreated)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSkipsFailedRequest(t *testing.T) {
	r, mock := auditRouter(t, http.StatusConflict)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
