// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package quake polls the BMKG earthquake bulletin and raises earthquake
// and tsunami alerts for significant events.
package quake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/models"
)

// ErrNoBulletin means the feed answered without an earthquake entry.
var ErrNoBulletin = errors.New("feed contains no earthquake bulletin")

const shakemapBase = "https://data.bmkg.go.id/DataMKG/TEWS/"

// bulletin mirrors Infogempa.gempa in autogempa.json.
type bulletin struct {
	Tanggal     string `json:"Tanggal"`
	Jam         string `json:"Jam"`
	DateTime    string `json:"DateTime"`
	Coordinates string `json:"Coordinates"`
	Lintang     string `json:"Lintang"`
	Bujur       string `json:"Bujur"`
	Magnitude   string `json:"Magnitude"`
	Kedalaman   string `json:"Kedalaman"`
	Wilayah     string `json:"Wilayah"`
	Potensi     string `json:"Potensi"`
	Dirasakan   string `json:"Dirasakan"`
	Shakemap    string `json:"Shakemap"`
}

type feedDocument struct {
	Infogempa struct {
		Gempa *bulletin `json:"gempa"`
	} `json:"Infogempa"`
}

// Client fetches the latest bulletin.
type Client struct {
	http *http.Client
	url  string
}

// NewClient creates a feed client.
func NewClient(client *http.Client, url string) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: client, url: url}
}

// Latest fetches and parses the most recent bulletin.
func (c *Client) Latest(ctx context.Context) (models.QuakeEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return models.QuakeEvent{}, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Tidewatch/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.QuakeEvent{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.QuakeEvent{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.QuakeEvent{}, fmt.Errorf("read feed: %w", err)
	}
	return Parse(body)
}

// Parse decodes an autogempa.json document.
func Parse(data []byte) (models.QuakeEvent, error) {
	var doc feedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.QuakeEvent{}, fmt.Errorf("decode feed: %w", err)
	}
	b := doc.Infogempa.Gempa
	if b == nil {
		return models.QuakeEvent{}, ErrNoBulletin
	}

	mag, err := strconv.ParseFloat(strings.TrimSpace(b.Magnitude), 64)
	if err != nil {
		return models.QuakeEvent{}, fmt.Errorf("parse magnitude %q: %w", b.Magnitude, err)
	}

	ev := models.QuakeEvent{
		Magnitude: mag,
		DepthKm:   parseDepth(b.Kedalaman),
		Region:    strings.TrimSpace(b.Wilayah),
		Potential: strings.TrimSpace(b.Potensi),
		Felt:      strings.TrimSpace(b.Dirasakan),
	}
	if b.Shakemap != "" {
		ev.ShakemapURL = shakemapBase + b.Shakemap
	}

	ev.OccurredAt, err = parseTime(b)
	if err != nil {
		return models.QuakeEvent{}, err
	}
	ev.ID = ev.OccurredAt.UTC().Format(time.RFC3339)

	ev.Latitude, ev.Longitude = parseCoordinates(b)
	return ev, nil
}

// wib is Western Indonesia Time, the zone of Tanggal and Jam.
var wib = time.FixedZone("WIB", 7*3600)

func parseTime(b *bulletin) (time.Time, error) {
	if b.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, b.DateTime); err == nil {
			return t, nil
		}
	}
	jam := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.Jam), "WIB"))
	for _, layout := range []string{"02 Jan 2006 15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(b.Tanggal)+" "+jam, wib); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse bulletin time %q %q %q", b.DateTime, b.Tanggal, b.Jam)
}

// parseCoordinates prefers the hemisphere-tagged Lintang and Bujur fields.
// LS (south) and BB (west) are negative.
func parseCoordinates(b *bulletin) (lat, lon float64) {
	if la, ok := parseTagged(b.Lintang, "LS", "LU"); ok {
		if lo, ok := parseTagged(b.Bujur, "BB", "BT"); ok {
			return la, lo
		}
	}
	parts := strings.Split(b.Coordinates, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	la, ok1 := parseTagged(parts[0], "LS", "LU")
	lo, ok2 := parseTagged(parts[1], "BB", "BT")
	if !ok1 || !ok2 {
		return 0, 0
	}
	return la, lo
}

func parseTagged(s, negative, positive string) (float64, bool) {
	s = strings.TrimSpace(s)
	sign := 1.0
	switch {
	case strings.HasSuffix(s, negative):
		sign = -1
		s = strings.TrimSuffix(s, negative)
	case strings.HasSuffix(s, positive):
		s = strings.TrimSuffix(s, positive)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return sign * v, true
}

func parseDepth(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "km"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// TsunamiPotential reports whether the bulletin's potential text warns of
// a tsunami. "Tidak berpotensi tsunami" is the all-clear wording.
func TsunamiPotential(potential string) bool {
	p := strings.ToLower(potential)
	return strings.Contains(p, "tsunami") && !strings.Contains(p, "tidak")
}

// haversineKm returns the great-circle distance in kilometres.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
