// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locate

// Verdict is the outcome of processing a single reading.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictStale    Verdict = "stale"
	VerdictInvalid  Verdict = "invalid"
	VerdictIgnored  Verdict = "ignored"
)

// GeocodeOutcome is the outcome of a completed reverse geocoding call.
type GeocodeOutcome string

const (
	GeocodeFound GeocodeOutcome = "found"
	GeocodeEmpty GeocodeOutcome = "empty"
	GeocodeError GeocodeOutcome = "error"
	GeocodeStale GeocodeOutcome = "stale"
)

// Recorder receives acquisition events for metrics.
type Recorder interface {
	SessionStarted()
	SessionFinished(reason StopReason)
	ReadingProcessed(verdict Verdict)
	GeocodeCompleted(outcome GeocodeOutcome)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()                 {}
func (nopRecorder) SessionFinished(StopReason)      {}
func (nopRecorder) ReadingProcessed(Verdict)        {}
func (nopRecorder) GeocodeCompleted(GeocodeOutcome) {}
