package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"auto", ModeAuto, false},
		{"ask", ModeAsk, false},
		{"yolo", ModeYolo, false},
		{"", ModeAuto, false},
		{"nope", ModeAuto, true},
	}

	for _, tt := range tests {
		t.Run("in="+tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeRequires(t *testing.T) {
	t.Parallel()

	ops := []Operation{OpRead, OpCreate, OpOverwrite, OpUpdate, OpDelete, OpCommand}

	tests := []struct {
		mode Mode
		want map[Operation]bool
	}{
		{
			mode: ModeAuto,
			want: map[Operation]bool{
				OpRead:      false,
				OpCreate:    false,
				OpOverwrite: true,
				OpUpdate:    true,
				OpDelete:    true,
				OpCommand:   true,
			},
		},
		{
			mode: ModeAsk,
			want: map[Operation]bool{
				OpRead:      false,
				OpCreate:    true,
				OpOverwrite: true,
				OpUpdate:    true,
				OpDelete:    true,
				OpCommand:   true,
			},
		},
		{
			mode: ModeYolo,
			want: map[Operation]bool{
				OpRead:      false,
				OpCreate:    false,
				OpOverwrite: false,
				OpUpdate:    false,
				OpDelete:    false,
				OpCommand:   false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()

			for _, op := range ops {
				assert.Equal(t, tt.want[op], tt.mode.Requires(op), "op %s", op)
			}
		})
	}
}
