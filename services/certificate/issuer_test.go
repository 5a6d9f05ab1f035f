package certificate

import (
	"context"
	"strings"
	"testing"

	"lms/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueIsStablePerStudentAndCourse(t *testing.T) {
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	issuer := NewIssuer(db, "https://learn.example.com/")
	ctx := context.Background()

	first, err := issuer.Issue(ctx, 7, 3, 11)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "CERT-"))

	again, err := issuer.Issue(ctx, 7, 3, 11)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := issuer.Issue(ctx, 7, 4, 12)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	certs, err := issuer.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	for _, c := range certs {
		assert.Equal(t, uint(7), c.UserID)
		assert.Equal(t, "https://learn.example.com/certificates/"+c.CertificateNumber, c.CertificateURL)
	}

	none, err := issuer.ListByUser(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, none)
}
