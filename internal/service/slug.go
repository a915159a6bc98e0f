// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olegiv/dwc-go/internal/model"
	"github.com/olegiv/dwc-go/internal/util"
)

// maxSlugProbes bounds the base, base-1, ... probe sequence.
const maxSlugProbes = 1000

// SlugProber reports whether a slug is taken by a record other than excludeID.
type SlugProber interface {
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
}

// SlugBase normalizes title into a slug, falling back to "post".
func SlugBase(title string) string {
	if base := util.Slugify(title); base != "" {
		return base
	}
	return model.DefaultSlugBase
}

// GenerateUniqueSlug returns the first free slug among base, base-1, ...
// base-999, and base-<unix millis> when all of those are taken.
func GenerateUniqueSlug(ctx context.Context, p SlugProber, title, excludeID string, now func() time.Time) (string, error) {
	base := SlugBase(title)

	for i := 0; i < maxSlugProbes; i++ {
		candidate := base
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i)
		}

		taken, err := p.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	if now == nil {
		now = time.Now
	}
	return base + "-" + strconv.FormatInt(now().UnixMilli(), 10), nil
}
