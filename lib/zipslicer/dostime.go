/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package zipslicer

import "time"

const (
	dosMinYear = 1980
	dosMaxYear = 1980 + 0x7f
	// 1980-01-01 00:00:00, the earliest representable MS-DOS timestamp
	dosMinDateTime = (1 << 21) | (1 << 16)
)

// EncodeDosTime packs a timestamp into MS-DOS date and time fields. Seconds
// are stored with 2 second granularity, rounding down. Years before 1980 clamp
// to the earliest representable date.
func EncodeDosTime(t time.Time) (date, tm uint16) {
	t = t.UTC()
	var packed uint32
	switch {
	case t.Year() < dosMinYear:
		packed = dosMinDateTime
	case t.Year() > dosMaxYear:
		packed = uint32(dosMaxYear-dosMinYear)<<25 | 12<<21 | 31<<16 | 23<<11 | 59<<5 | 29
	default:
		packed = uint32(t.Year()-dosMinYear)<<25 |
			uint32(t.Month())<<21 |
			uint32(t.Day())<<16 |
			uint32(t.Hour())<<11 |
			uint32(t.Minute())<<5 |
			uint32(t.Second())>>1
	}
	return uint16(packed >> 16), uint16(packed)
}

// DecodeDosTime unpacks MS-DOS date and time fields into a UTC timestamp
func DecodeDosTime(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+dosMinYear,
		time.Month(date>>5&0x0f),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)<<1,
		0,
		time.UTC,
	)
}
