// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mikan

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

var bangumiHrefRe = regexp.MustCompile(`/Home/Bangumi/(\d+)`)

// AnimeBundle is everything parsed off one Mikan detail page: the show
// itself plus every subtitle group and resource row found on the page.
type AnimeBundle struct {
	Anime          domain.Anime
	SubtitleGroups []domain.SubtitleGroup
	Resources      []resourceRow
}

// resourceRow is a resource as parsed from one table row. SubtitleGroupID is
// the upstream group id, which is also the subtitle_groups key; the crawler
// adds the show id and the normalized episode, resolution, subtitle type and
// magnet hash.
type resourceRow struct {
	SubtitleGroupID int64
	Title           string
	FileSize        *string
	MagnetURL       *string
	TorrentURL      *string
	ReleaseDate     *int64
}

// ParseList extracts every distinct show id linked from a listing page
// (homepage or per-weekday season page). Hrefs are deduplicated since the
// same show can be linked more than once on a single page.
func ParseList(html string) ([]int64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.OtherDomain(fmt.Sprintf("parse list page: %v", err))
	}

	seen := make(map[int64]struct{})
	var ids []int64
	doc.Find("a[href*='/Home/Bangumi/']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		m := bangumiHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}

// ParseDetail extracts an AnimeBundle from one show's detail page.
// baseURL resolves relative torrent hrefs into absolute URLs.
func ParseDetail(html string, mikanID int64, baseURL string) (*AnimeBundle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.OtherDomain(fmt.Sprintf("parse detail page: %v", err))
	}

	anime := parseAnimeInfo(doc, mikanID)
	groups, resources := parseGroupsAndResources(doc, baseURL)

	return &AnimeBundle{
		Anime:          anime,
		SubtitleGroups: groups,
		Resources:      resources,
	}, nil
}

func parseAnimeInfo(doc *goquery.Document, mikanID int64) domain.Anime {
	anime := domain.Anime{MikanID: mikanID, Status: domain.AnimeStatusUnknown}

	title := strings.TrimSpace(doc.Find("p.bangumi-title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
		title = strings.TrimPrefix(title, "Mikan Project - ")
	}
	anime.Title = title

	if href, ok := doc.Find("a[href*='bgm.tv/subject/']").First().Attr("href"); ok {
		u := strings.TrimSpace(href)
		anime.BangumiURL = &u
		if id := bangumiSubjectID(u); id > 0 {
			anime.BangumiID = id
		}
	}

	doc.Find("p.bangumi-info").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		switch {
		case strings.HasPrefix(text, "放送日期："):
			v := strings.TrimSpace(strings.TrimPrefix(text, "放送日期："))
			anime.BroadcastDay = &v
		case strings.HasPrefix(text, "放送开始："):
			v := strings.TrimSpace(strings.TrimPrefix(text, "放送开始："))
			if ms := ParseDateTimeToEpochMillis(v); ms != nil {
				anime.BroadcastStart = ms
			}
		case strings.Contains(text, "官方网站："):
			idx := strings.Index(text, "官方网站：")
			v := strings.TrimSpace(text[idx+len("官方网站："):])
			anime.OfficialWebsite = &v
		}
	})

	return anime
}

func bangumiSubjectID(subjectURL string) int64 {
	parts := strings.Split(strings.TrimRight(subjectURL, "/"), "/")
	if len(parts) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseGroupsAndResources(doc *goquery.Document, baseURL string) ([]domain.SubtitleGroup, []resourceRow) {
	var groups []domain.SubtitleGroup
	var resources []resourceRow

	doc.Find("div.subgroup-text").Each(func(_ int, sel *goquery.Selection) {
		idAttr, ok := sel.Attr("id")
		if !ok {
			return
		}
		groupID, err := strconv.ParseInt(idAttr, 10, 64)
		if err != nil {
			return
		}
		name := strings.TrimSpace(sel.Find("a").First().Text())
		groups = append(groups, domain.SubtitleGroup{ID: groupID, Name: name})

		table := sel.NextAllFiltered("table").First()
		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			r, ok := parseResourceRow(row, groupID, baseURL)
			if ok {
				resources = append(resources, r)
			}
		})
	})

	return groups, resources
}

func parseResourceRow(row *goquery.Selection, groupID int64, baseURL string) (resourceRow, bool) {
	titleSel := row.Find("a.magnet-link-wrap").First()
	title := strings.TrimSpace(titleSel.Text())
	if title == "" {
		return resourceRow{}, false
	}

	r := resourceRow{SubtitleGroupID: groupID, Title: title}

	if clip, ok := row.Find("a.js-magnet").First().Attr("data-clipboard-text"); ok {
		v := strings.TrimSpace(clip)
		r.MagnetURL = &v
	}

	cells := row.Find("td")
	if cells.Length() >= 2 {
		size := strings.TrimSpace(cells.Eq(1).Text())
		if size != "" {
			r.FileSize = &size
		}
	}
	if cells.Length() >= 3 {
		dateText := strings.TrimSpace(cells.Eq(2).Text())
		r.ReleaseDate = ParseDateTimeToEpochMillis(dateText)
	}
	if cells.Length() >= 4 {
		if href, ok := cells.Eq(3).Find("a").First().Attr("href"); ok {
			v := resolveURL(baseURL, href)
			r.TorrentURL = &v
		}
	}

	return r, true
}

func resolveURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
