// internal/model/common.go
// @tag models, data_structure, core
package model

import (
	"fmt"
	"strings"
	"time"
)

// ───────────────────────────────────────────────────────────────
// 🚀 Core Data Structures
// ───────────────────────────────────────────────────────────────

// AssetCategory identifies the market segment an archive belongs to.
type AssetCategory string

const (
	Spot  AssetCategory = "spot"
	USDM  AssetCategory = "um"
	COINM AssetCategory = "cm"
)

func (c AssetCategory) String() string { return string(c) }

// ParseAssetCategory maps the short category token used in archive paths
// to an AssetCategory.
func ParseAssetCategory(s string) (AssetCategory, error) {
	switch AssetCategory(strings.ToLower(strings.TrimSpace(s))) {
	case Spot:
		return Spot, nil
	case USDM:
		return USDM, nil
	case COINM:
		return COINM, nil
	default:
		return "", fmt.Errorf("invalid asset category %q", s)
	}
}

// Granularity is the time span covered by one published archive.
type Granularity string

const (
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"
)

func (g Granularity) String() string { return string(g) }

// Symbol is a tradable instrument together with the date trading began.
type Symbol struct {
	Name        string    `json:"name"`
	OnboardDate time.Time `json:"onboard_date"`
}
