package radosgw_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remora-tools/remora/pkg/radosgw"
)

func TestExecRunnerRun(t *testing.T) {
	t.Run("returns stdout", func(t *testing.T) {
		out, err := radosgw.ExecRunner{}.Run(t.Context(), "sh", "-c", "printf hello")
		require.NoError(t, err)
		require.Equal(t, "hello", string(out))
	})

	t.Run("folds stderr into the error", func(t *testing.T) {
		_, err := radosgw.ExecRunner{}.Run(t.Context(), "sh", "-c", "printf kaboom >&2; exit 3")
		require.ErrorContains(t, err, "exit status 3")
		require.ErrorContains(t, err, "kaboom")
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		_, err := radosgw.ExecRunner{}.Run(ctx, "sleep", "5")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestExecRunnerRunInput(t *testing.T) {
	out, err := radosgw.ExecRunner{}.RunInput(t.Context(), strings.NewReader("pass through"), "cat")
	require.NoError(t, err)
	require.Equal(t, "pass through", string(out))
}

func TestExecRunnerStream(t *testing.T) {
	t.Run("yields lines in order", func(t *testing.T) {
		var lines []string
		for line, err := range (radosgw.ExecRunner{}).Stream(t.Context(), "sh", "-c", `printf 'a\nb\nc\n'`) {
			require.NoError(t, err)
			lines = append(lines, line)
		}
		require.Equal(t, []string{"a", "b", "c"}, lines)
	})

	t.Run("reports a failing command after its output", func(t *testing.T) {
		var lines []string
		var last error
		for line, err := range (radosgw.ExecRunner{}).Stream(t.Context(), "sh", "-c", `printf 'partial\n'; exit 2`) {
			if err != nil {
				last = err
				break
			}
			lines = append(lines, line)
		}
		require.Equal(t, []string{"partial"}, lines)
		require.ErrorContains(t, last, "exit status 2")
	})

	t.Run("kills the command when the consumer stops early", func(t *testing.T) {
		var got string
		for line, err := range (radosgw.ExecRunner{}).Stream(t.Context(), "sh", "-c", `printf 'x\ny\n'; sleep 5`) {
			require.NoError(t, err)
			got = line
			break
		}
		require.Equal(t, "x", got)
	})
}
