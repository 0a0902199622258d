// gps_wire.go - GPS wire format and NMEA sentence parsing (spec.md §6
// "GPS wire format", §4.3 GPS receiver).

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const gpsBlockSize = 256

// GPSFix is the decoded, publishable GPS state (spec.md §3, SPEC_FULL.md
// §12.4 fix-quality passthrough).
type GPSFix struct {
	UnixTime         float64
	HaveTime         bool
	LatDeg, LonDeg   float64
	HavePosition     bool
	SpeedMps         float64
	CourseDeg        float64
	HaveVelocity     bool
	FixQuality       int
	SatellitesInView int
}

// readGPSBlock reads one fixed 256-byte text block and returns the
// leading "%.3f" timestamp and the NMEA sentence that follows it
// (spec.md §6).
func readGPSBlock(r *bufio.Reader) (ts float64, sentence string, err error) {
	buf := make([]byte, gpsBlockSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, "", err
	}
	text := strings.TrimRight(string(buf), "\x00")
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("gps_wire: malformed block %q", text)
	}
	ts, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, "", fmt.Errorf("gps_wire: bad timestamp %q: %w", parts[0], err)
	}
	return ts, strings.TrimSpace(parts[1]), nil
}

// applyNMEASentence parses a recognized NMEA sentence (GGA or RMC,
// identified by the 3 bytes following the 2-byte talker ID) into fix,
// mutating only the fields that sentence carries.
func applyNMEASentence(fix *GPSFix, sentence string) error {
	if len(sentence) < 7 || sentence[0] != '$' {
		return fmt.Errorf("gps_wire: not a sentence: %q", sentence)
	}
	body := sentence[1:]
	if idx := strings.IndexByte(body, '*'); idx >= 0 {
		body = body[:idx]
	}
	fields := strings.Split(body, ",")
	if len(fields) == 0 {
		return fmt.Errorf("gps_wire: empty sentence")
	}
	kind := fields[0]
	if len(kind) < 5 {
		return fmt.Errorf("gps_wire: short sentence id %q", kind)
	}
	switch kind[2:5] {
	case "GGA":
		return parseGGA(fix, fields)
	case "RMC":
		return parseRMC(fix, fields)
	default:
		return nil // unrecognized sentence type, silently ignored per spec.md §6
	}
}

// parseGGA handles: $--GGA,hhmmss.sss,ddmm.mmmm,N,dddmm.mmmm,E,fix,sats,hdop,alt,M,...
func parseGGA(fix *GPSFix, f []string) error {
	if len(f) < 8 {
		return fmt.Errorf("gps_wire: GGA too short")
	}
	if f[1] != "" {
		fix.HaveTime = true
	}
	lat, lon, err := parseLatLon(f[2], f[3], f[4], f[5])
	if err == nil {
		fix.LatDeg, fix.LonDeg = lat, lon
		fix.HavePosition = true
	}
	if q, err := strconv.Atoi(f[6]); err == nil {
		fix.FixQuality = q
	}
	if s, err := strconv.Atoi(f[7]); err == nil {
		fix.SatellitesInView = s
	}
	return nil
}

// parseRMC handles: $--RMC,hhmmss.sss,status,ddmm.mmmm,N,dddmm.mmmm,E,sog,cog,ddmmyy,...
func parseRMC(fix *GPSFix, f []string) error {
	if len(f) < 10 {
		return fmt.Errorf("gps_wire: RMC too short")
	}
	if f[1] != "" {
		fix.HaveTime = true
	}
	lat, lon, err := parseLatLon(f[3], f[4], f[5], f[6])
	if err == nil {
		fix.LatDeg, fix.LonDeg = lat, lon
		fix.HavePosition = true
	}
	sog, sogErr := strconv.ParseFloat(f[7], 64)
	cog, cogErr := strconv.ParseFloat(f[8], 64)
	if sogErr == nil && cogErr == nil {
		fix.SpeedMps = sog * 0.514444
		fix.CourseDeg = cog
		fix.HaveVelocity = true
	}
	return nil
}

// parseLatLon converts NMEA ddmm.mmmm/dddmm.mmmm + hemisphere letters into
// signed decimal degrees (spec.md §6).
func parseLatLon(latStr, latHem, lonStr, lonHem string) (lat, lon float64, err error) {
	if latStr == "" || lonStr == "" {
		return 0, 0, fmt.Errorf("gps_wire: missing position")
	}
	lat, err = parseDM(latStr, 2)
	if err != nil {
		return 0, 0, err
	}
	lon, err = parseDM(lonStr, 3)
	if err != nil {
		return 0, 0, err
	}
	if latHem == "S" {
		lat = -lat
	}
	if lonHem == "W" {
		lon = -lon
	}
	return lat, lon, nil
}

// parseDM parses "dd(d)mm.mmmm" with degWidth leading degree digits.
func parseDM(s string, degWidth int) (float64, error) {
	if len(s) < degWidth+1 {
		return 0, fmt.Errorf("gps_wire: malformed coordinate %q", s)
	}
	deg, err := strconv.ParseFloat(s[:degWidth], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(s[degWidth:], 64)
	if err != nil {
		return 0, err
	}
	return deg + min/60, nil
}
