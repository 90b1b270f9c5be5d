// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import "github.com/vorlif/spreak/localize"

// Status messages shown instead of coordinates.
const (
	MsgIdle            localize.MsgID = "Tap 'Get My Location' to Start"
	MsgSearching       localize.MsgID = "Searching..."
	MsgDisabled        localize.MsgID = "Location Services Disabled"
	MsgError           localize.MsgID = "Error Getting Location"
	MsgTimeout         localize.MsgID = "Timed Out Getting Location"
	MsgAddressSearch   localize.MsgID = "Searching for Address..."
	MsgAddressError    localize.MsgID = "Error Finding Address"
	MsgAddressNotFound localize.MsgID = "No Address Found"
)

// i18nVars maps the keys accepted by the loc template function to their message IDs.
var i18nVars = map[string]localize.MsgID{
	"latitude":    "Latitude",
	"longitude":   "Longitude",
	"accuracy":    "Accuracy",
	"address":     "Address",
	"category":    "Category",
	"date":        "Date",
	"description": "Description",
	"tagged":      "Tagged",
}

// stateClasses maps acquisition states to the CSS class of the output.
var stateClasses = map[string]string{
	"idle":      "idle",
	"acquiring": "searching",
	"succeeded": "located",
	"timed_out": "timeout",
	"failed":    "error",
	"stopped":   "stopped",
}
