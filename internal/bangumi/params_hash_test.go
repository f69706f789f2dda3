// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bangumi

import (
	"testing"

	"github.com/niloux/ikuyo-go/internal/domain"
)

func TestParamsHashStableAndDistinguishing(t *testing.T) {
	limit := 20
	a := domain.EpisodesQuery{SubjectID: 42, Limit: &limit}
	b := domain.EpisodesQuery{SubjectID: 42, Limit: &limit}
	if ParamsHash(a) != ParamsHash(b) {
		t.Fatal("expected identical queries to hash identically")
	}

	other := 30
	c := domain.EpisodesQuery{SubjectID: 42, Limit: &other}
	if ParamsHash(a) == ParamsHash(c) {
		t.Fatal("expected distinct limits to hash differently")
	}

	d := domain.EpisodesQuery{SubjectID: 43, Limit: &limit}
	if ParamsHash(a) == ParamsHash(d) {
		t.Fatal("expected distinct subject ids to hash differently")
	}
}
