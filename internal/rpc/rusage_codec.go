// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/clusterbatch/batchsched/internal/procharvest"
)

// wireRusage mirrors spec.md §6's jRusage wire shape
// (mem,swap,utime,stime,npids,npgids,pidInfo[],pgid[]); npids/npgids
// are implicit in gob's slice framing rather than carried as separate
// fields. The on-wire encoding itself is an implementation detail the
// two ends must merely agree on, not a protocol this package
// externalizes.
type wireRusage struct {
	MemKB, SwapKB, UTimeS, STimeS float64
	Pids                          []procharvest.PidInfo
	Pgids                         []int
}

// EncodeRusage serializes r for inclusion in a BLAUNCH_RUSAGE frame
// payload.
func EncodeRusage(r procharvest.Rusage) ([]byte, error) {
	var buf bytes.Buffer
	w := wireRusage{MemKB: r.MemKB, SwapKB: r.SwapKB, UTimeS: r.UTimeS, STimeS: r.STimeS, Pids: r.Pids, Pgids: r.Pgids}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("rpc: encode rusage: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRusage is EncodeRusage's inverse.
func DecodeRusage(payload []byte) (procharvest.Rusage, error) {
	var w wireRusage
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&w); err != nil {
		return procharvest.Rusage{}, fmt.Errorf("rpc: decode rusage: %w", err)
	}
	return procharvest.Rusage{MemKB: w.MemKB, SwapKB: w.SwapKB, UTimeS: w.UTimeS, STimeS: w.STimeS, Pids: w.Pids, Pgids: w.Pgids}, nil
}
