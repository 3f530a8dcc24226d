package geopkg

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GeoPackage binary geometry constants.
const (
	gpMagic1       = 0x47 // 'G'
	gpMagic2       = 0x50 // 'P'
	gpVersion      = 0    // GeoPackage binary version 1
	gpFlagsLENoEnv = 0x01 // little-endian, no envelope

	wkbLittleEndian = 1
	wkbPoint        = 1
)

// pointBlobLen is the fixed size of a GeoPackage point blob:
// 8-byte GP header + 1-byte WKB order + 4-byte WKB type + two float64s.
const pointBlobLen = 8 + 1 + 4 + 16

// PointGeometryHeader is the GeoPackage binary header for a given SRS. It is
// identical for every point in a layer, so callers build it once.
type PointGeometryHeader [8]byte

// NewPointGeometryHeader builds the standard GeoPackage binary header
// (magic, version, flags, srs_id) used for every point geometry.
func NewPointGeometryHeader(srsID int32) PointGeometryHeader {
	var h PointGeometryHeader
	h[0] = gpMagic1
	h[1] = gpMagic2
	h[2] = gpVersion
	h[3] = gpFlagsLENoEnv
	binary.LittleEndian.PutUint32(h[4:], uint32(srsID))
	return h
}

// EncodePoint encodes a lon/lat pair as a GeoPackage binary point blob:
// the header followed by a little-endian WKB POINT.
func EncodePoint(hdr PointGeometryHeader, lon, lat float64) []byte {
	blob := make([]byte, pointBlobLen)
	copy(blob, hdr[:])
	blob[8] = wkbLittleEndian
	binary.LittleEndian.PutUint32(blob[9:], wkbPoint)
	binary.LittleEndian.PutUint64(blob[13:], math.Float64bits(lon))
	binary.LittleEndian.PutUint64(blob[21:], math.Float64bits(lat))
	return blob
}

// DecodePoint extracts the lon/lat pair from a GeoPackage binary point blob
// produced by EncodePoint. Used by validation and tests.
func DecodePoint(blob []byte) (lon, lat float64, err error) {
	if len(blob) < pointBlobLen {
		return 0, 0, fmt.Errorf("geometry blob too short: %d bytes", len(blob))
	}
	if blob[0] != gpMagic1 || blob[1] != gpMagic2 {
		return 0, 0, fmt.Errorf("bad geometry magic % x", blob[:2])
	}
	if blob[3]&0x01 == 0 || blob[8] != wkbLittleEndian {
		return 0, 0, fmt.Errorf("unsupported geometry byte order")
	}
	if envFlags := (blob[3] >> 1) & 0x07; envFlags != 0 {
		return 0, 0, fmt.Errorf("unexpected envelope flags %d", envFlags)
	}
	if typ := binary.LittleEndian.Uint32(blob[9:]); typ != wkbPoint {
		return 0, 0, fmt.Errorf("unexpected WKB type %d, want point", typ)
	}
	lon = math.Float64frombits(binary.LittleEndian.Uint64(blob[13:]))
	lat = math.Float64frombits(binary.LittleEndian.Uint64(blob[21:]))
	return lon, lat, nil
}
