// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bangumi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGetSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/subjects/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"name":"Example","name_cn":"示例"}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	subj, err := c.GetSubject(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if subj.ID != 42 || subj.NameCN != "示例" {
		t.Fatalf("unexpected subject: %+v", subj)
	}
}

func TestClientGetSubjectNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.GetSubject(context.Background(), 1); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestClientGetCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"weekday":{"en":"Mon","cn":"星期一","ja":"月","id":1},"items":[]}]`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cal, err := c.GetCalendar(context.Background())
	if err != nil {
		t.Fatalf("GetCalendar: %v", err)
	}
	if len(cal) != 1 || cal[0].Weekday.Cn != "星期一" {
		t.Fatalf("unexpected calendar: %+v", cal)
	}
}
