package queue

import (
	"testing"

	"github.com/voxhub/notify-engine/internal/domain"
)

func TestDispatchMessageValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     DispatchMessage
		wantErr bool
	}{
		{
			name: "valid",
			msg: DispatchMessage{
				NotificationID: "7f0c6f6e-6f52-4f22-9c35-2ad09a5c1a01",
				EventID:        "evt-1",
				Category:       domain.CategoryMention,
			},
		},
		{
			name: "valid without event id",
			msg: DispatchMessage{
				NotificationID: "7f0c6f6e-6f52-4f22-9c35-2ad09a5c1a01",
				Category:       domain.CategorySystem,
			},
		},
		{
			name:    "missing notification id",
			msg:     DispatchMessage{Category: domain.CategoryMention},
			wantErr: true,
		},
		{
			name: "blank notification id",
			msg: DispatchMessage{
				NotificationID: "   ",
				Category:       domain.CategoryMention,
			},
			wantErr: true,
		},
		{
			name: "invalid category",
			msg: DispatchMessage{
				NotificationID: "7f0c6f6e-6f52-4f22-9c35-2ad09a5c1a01",
				Category:       domain.Category("NOISE"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.msg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}
