// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mikan

import "testing"

const listFixture = `
<html><body>
<a href="/Home/Bangumi/3000">Show A</a>
<a href="/Home/Bangumi/3000#comments">Show A again</a>
<a href="/Home/Bangumi/3001">Show B</a>
<a href="/Home/Episode/abc">not a show link</a>
</body></html>
`

func TestParseListDedupesShows(t *testing.T) {
	ids, err := ParseList(listFixture)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 unique ids, got %v", ids)
	}
	if ids[0] != 3000 || ids[1] != 3001 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

const detailFixture = `
<html><head><title>Mikan Project - Example Show</title></head>
<body>
<p class="bangumi-title">Example Show</p>
<a href="https://bgm.tv/subject/123456">bangumi</a>
<p class="bangumi-info">放送日期：2024年1月</p>
<p class="bangumi-info">放送开始：2024/01/15 23:30</p>
<p class="bangumi-info">官方网站：https://example.com</p>
<div class="subgroup-text" id="501"><a>Example Subs</a></div>
<table>
<tbody>
<tr>
<td><a class="magnet-link-wrap">[Example Subs][01][1080p][简体]</a>
<a class="js-magnet" data-clipboard-text="magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=ep1"></a></td>
<td>1.2GB</td>
<td>2024/01/15 23:30</td>
<td><a href="/Downloads/torrent/1">torrent</a></td>
</tr>
</tbody>
</table>
</body></html>
`

func TestParseDetailExtractsAnimeGroupsAndResources(t *testing.T) {
	bundle, err := ParseDetail(detailFixture, 3000, "https://mikanani.me")
	if err != nil {
		t.Fatalf("ParseDetail: %v", err)
	}

	if bundle.Anime.Title != "Example Show" {
		t.Fatalf("unexpected title: %q", bundle.Anime.Title)
	}
	if bundle.Anime.BangumiID != 123456 {
		t.Fatalf("unexpected bangumi id: %d", bundle.Anime.BangumiID)
	}
	if bundle.Anime.BroadcastStart == nil {
		t.Fatal("expected broadcast start to be parsed")
	}
	if bundle.Anime.OfficialWebsite == nil || *bundle.Anime.OfficialWebsite != "https://example.com" {
		t.Fatalf("unexpected official website: %v", bundle.Anime.OfficialWebsite)
	}

	if len(bundle.SubtitleGroups) != 1 || bundle.SubtitleGroups[0].ID != 501 {
		t.Fatalf("unexpected groups: %+v", bundle.SubtitleGroups)
	}
	if bundle.SubtitleGroups[0].Name != "Example Subs" {
		t.Fatalf("unexpected group name: %q", bundle.SubtitleGroups[0].Name)
	}

	if len(bundle.Resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(bundle.Resources))
	}
	r := bundle.Resources[0]
	if r.SubtitleGroupID != 501 {
		t.Fatalf("unexpected resource group id: %d", r.SubtitleGroupID)
	}
	if r.MagnetURL == nil {
		t.Fatal("expected magnet url")
	}
	if r.TorrentURL == nil || *r.TorrentURL != "https://mikanani.me/Downloads/torrent/1" {
		t.Fatalf("unexpected torrent url: %v", r.TorrentURL)
	}
	if r.FileSize == nil || *r.FileSize != "1.2GB" {
		t.Fatalf("unexpected file size: %v", r.FileSize)
	}
	if r.ReleaseDate == nil {
		t.Fatal("expected release date to be parsed")
	}
}
