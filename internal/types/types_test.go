package types

import "testing"

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    PageRequest
		wantPage int
		wantSize int
	}{
		{"zero value gets defaults", PageRequest{}, 1, DefaultPageSize},
		{"negative page clamps to 1", PageRequest{PageNumber: -3, PageSize: 10}, 1, 10},
		{"zero size gets default", PageRequest{PageNumber: 2}, 2, DefaultPageSize},
		{"valid request unchanged", PageRequest{PageNumber: 7, PageSize: 25}, 7, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.input.Normalize()
			if got.PageNumber != tt.wantPage {
				t.Errorf("PageNumber = %d, want %d", got.PageNumber, tt.wantPage)
			}
			if got.PageSize != tt.wantSize {
				t.Errorf("PageSize = %d, want %d", got.PageSize, tt.wantSize)
			}
		})
	}
}

func TestPageRequest_LimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		input      PageRequest
		wantLimit  int
		wantOffset int
	}{
		{"first page", PageRequest{PageNumber: 1, PageSize: 500}, 500, 0},
		{"third page", PageRequest{PageNumber: 3, PageSize: 500}, 500, 1000},
		{"unnormalized input", PageRequest{}, DefaultPageSize, 0},
		{"small pages", PageRequest{PageNumber: 10, PageSize: 7}, 7, 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := tt.input.LimitOffset()
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

func TestServiceError_Error(t *testing.T) {
	err := &ServiceError{Code: "INVALID_PARAMETER", Message: "bad page"}
	if got := err.Error(); got != "INVALID_PARAMETER: bad page" {
		t.Errorf("Error() = %q", got)
	}
}
