package native

import "testing"

func TestCompletion_Kind(t *testing.T) {
	tests := []struct {
		name string
		c    Completion
		want ResponseType
	}{
		{"success", Completion{Type: ResponseSuccess, Result: []byte("{}")}, ResponseSuccess},
		{"success with error payload", Completion{Type: ResponseSuccess, Error: []byte(`{"code":1}`)}, ResponseError},
		{"error", Completion{Type: ResponseError, Error: []byte(`{}`)}, ResponseError},
		{"notify keeps type", Completion{Type: ResponseAppNotify, Error: []byte("x")}, ResponseAppNotify},
		{"custom", Completion{Type: ResponseCustom + 2}, ResponseCustom + 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseType_String(t *testing.T) {
	tests := map[ResponseType]string{
		ResponseSuccess:    "success",
		ResponseError:      "error",
		ResponseNop:        "nop",
		ResponseAppRequest: "app_request",
		ResponseAppNotify:  "app_notify",
		ResponseCustom:     "custom+0",
		ResponseCustom + 7: "custom+7",
		ResponseType(9):    "type(9)",
	}
	for rt, want := range tests {
		if got := rt.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", uint32(rt), got, want)
		}
	}
}
