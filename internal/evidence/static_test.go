package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	resolver := NewStaticResolver("https://media.example.com/evidence/")
	ctx := context.Background()

	t.Run("builds a gateway preview URL", func(t *testing.T) {
		info, err := resolver.Resolve(ctx, "s3://exam-evidence/session-7/shot-1.png")
		require.NoError(t, err)
		assert.Equal(t,
			"https://media.example.com/evidence?ref=s3%3A%2F%2Fexam-evidence%2Fsession-7%2Fshot-1.png",
			info.PreviewURL)
	})

	t.Run("rejects an empty ref", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "")
		assert.Error(t, err)
	})
}
