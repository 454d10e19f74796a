package k3ng

// Wire vocabulary of the K3NG rotator controller firmware.
//
// Basic commands are sent as `\<code><args>` and answer with free-form
// lines. Extended commands are sent as `\?<code><args>` and answer with
// a status-prefixed line such as `\!OKAZ180.00` or `\!??AZ`.
const (
	BasicMarker    = `\`
	ExtendedMarker = `\?`

	AckMarker   = `\!OK`
	ErrorMarker = `\!??`

	// statusWidth is the length of the extended reply status field and
	// payloadOffset where the payload starts.
	statusWidth   = 5
	payloadOffset = 6
)

// Basic commands.
const (
	cmdClock     = `\C`
	cmdSetClock  = `\O`
	cmdSetGrid   = `\G`
	cmdSave      = `\Q`
	cmdPark      = `\P`
	cmdAutopark  = `\Y`
	cmdLoadTLE   = `\#`
	cmdDumpTLEs  = `\$`
	cmdTracking  = `\^`
	cmdTrackInfo = `\@`

	// cmdPrime is the harmless command that opens every session.
	cmdPrime = cmdClock
)

// Extended command codes.
const (
	extVersion     = "CV"
	extAzimuth     = "AZ"
	extElevation   = "EL"
	extGotoAzimuth = "GA"
	extGotoElev    = "GE"
	extStopAzimuth = "SA"
	extStopElev    = "SE"
	extStopAll     = "SS"
	extRotateUp    = "RU"
	extRotateDown  = "RD"
	extRotateCW    = "RR"
	extRotateCCW   = "RL"
	extCalFullUp   = "CU"
	extCalFullDown = "CD"
	extCalFullCW   = "CW"
	extCalFullCCW  = "CC"
	extParkAzimuth = "PA"
	extParkElev    = "PE"
)

// Reply markers.
const (
	// CalibrationAck must appear in the payload of a calibration reply.
	CalibrationAck = "OK"

	// tleCorruptMarker and tleTruncatedMarker are matched case-insensitively
	// against the reply that closes a TLE upload.
	tleCorruptMarker   = "corrupt"
	tleTruncatedMarker = "truncat"
)
