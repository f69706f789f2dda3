// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bangumi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/niloux/ikuyo-go/internal/domain"
)

// ParamsHash computes a stable hash of an episodes-page query, used as half
// of the bangumi_episodes_cache composite key.
func ParamsHash(q domain.EpisodesQuery) string {
	etype := "-"
	if q.EpisodeType != nil {
		etype = fmt.Sprintf("%d", *q.EpisodeType)
	}
	limit := "-"
	if q.Limit != nil {
		limit = fmt.Sprintf("%d", *q.Limit)
	}
	offset := "-"
	if q.Offset != nil {
		offset = fmt.Sprintf("%d", *q.Offset)
	}

	raw := fmt.Sprintf("%d|%s|%s|%s", q.SubjectID, etype, limit, offset)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
