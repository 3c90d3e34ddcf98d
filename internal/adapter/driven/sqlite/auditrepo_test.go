package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

func TestAuditRepo_Record(t *testing.T) {
	for _, schema := range []Schema{SchemaIssuer, SchemaRecorder} {
		t.Run(string(schema), func(t *testing.T) {
			db := setupTestDB(t, schema)
			repo := NewAuditRepo(db)
			ctx := context.Background()

			err := repo.Record(ctx, model.AuditEntry{
				Action:    model.AuditBallotCast,
				Success:   true,
				Details:   map[string]any{"hash_prefix": "abcdef01"},
				CreatedAt: testNow,
			})
			require.NoError(t, err)

			var (
				id, action, details string
				success             bool
			)
			err = db.Reader.QueryRowContext(ctx, `SELECT id, action, success, details FROM audit_log`).
				Scan(&id, &action, &success, &details)
			require.NoError(t, err)

			assert.NotEmpty(t, id)
			assert.Equal(t, "ballot_cast", action)
			assert.True(t, success)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(details), &decoded))
			assert.Equal(t, "abcdef01", decoded["hash_prefix"])
		})
	}
}

func TestAuditRepo_Prune(t *testing.T) {
	db := setupTestDB(t, SchemaRecorder)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, model.AuditEntry{Action: model.AuditHashRegistered, CreatedAt: testNow.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Record(ctx, model.AuditEntry{Action: model.AuditHashRegistered, CreatedAt: testNow}))

	n, err := repo.Prune(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining int
	require.NoError(t, db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}
