// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders acquisition snapshots and saved records for display.
package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/mylocations/internal/config"
	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/i18n"
	"github.com/wneessen/mylocations/internal/locate"
	"github.com/wneessen/mylocations/internal/store"
	"github.com/wneessen/mylocations/internal/vartype"
)

const OutputClass = "mylocations"

// Output is the rendered form of a snapshot.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
	Alt     string `json:"alt"`
}

// TemplateContext is the data the text and tooltip templates are executed with.
// Latitude, Longitude and Accuracy are empty while there is no fix.
type TemplateContext struct {
	State   string
	Status  string
	Message string
	HasFix  bool

	Latitude  string
	Longitude string
	Accuracy  string
	Address   string

	Reading     geobus.Reading
	AddressInfo geocode.Address
	Updated     time.Time
	Elapsed     time.Duration
}

type Presenter struct {
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	text      *template.Template
	tooltip   *template.Template
	now       func() time.Time
}

// New parses the configured templates. Templates are test-rendered with a sample
// context so that errors surface at startup.
func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	if conf == nil || loc == nil {
		return nil, errors.New("config and localizer are required")
	}
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	p := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(i18n.Detect(conf.Locale), language.English),
		now:       time.Now,
	}

	p.text, err = template.New("text").Funcs(p.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	p.tooltip, err = template.New("tooltip").Funcs(p.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}

	sample := p.BuildContext(locate.Snapshot{
		Session: 1,
		Best: vartype.NewVariable(geobus.Reading{
			Coordinate: geobus.Coordinate{Lat: 52.520008, Lon: 13.404954},
			Accuracy:   10,
			At:         p.now(),
		}),
		Address: vartype.NewVariable(geocode.Address{AddressFound: true, City: "Berlin"}),
	})
	if _, err = p.execute(p.text, sample); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if _, err = p.execute(p.tooltip, sample); err != nil {
		return nil, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	return p, nil
}

// Render renders snap with the configured templates.
func (p *Presenter) Render(snap locate.Snapshot) (Output, error) {
	ctx := p.BuildContext(snap)
	text, err := p.execute(p.text, ctx)
	if err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltip, err := p.execute(p.tooltip, ctx)
	if err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}
	return Output{
		Text:    text,
		Tooltip: tooltip,
		Class:   OutputClass + "-" + stateClasses[ctx.State],
		Alt:     ctx.State,
	}, nil
}

func (p *Presenter) BuildContext(snap locate.Snapshot) TemplateContext {
	ctx := TemplateContext{
		State:   snap.State().String(),
		Message: p.StatusMessage(snap),
		Elapsed: snap.Elapsed(p.now()),
	}

	best, ok := snap.Best.Get()
	if !ok {
		ctx.Status = ctx.Message
		return ctx
	}

	ctx.HasFix = true
	ctx.Reading = best
	ctx.Updated = best.At
	ctx.Latitude = fmt.Sprintf("%.8f", best.Lat)
	ctx.Longitude = fmt.Sprintf("%.8f", best.Lon)
	ctx.Accuracy = fmt.Sprintf("%.0f m", best.Accuracy)
	ctx.AddressInfo = snap.Address.Value()
	ctx.Address = p.AddressLine(snap)
	ctx.Status = ctx.Address
	if !ctx.AddressInfo.AddressFound {
		ctx.Status = best.Coordinate.String()
	}
	return ctx
}

// StatusMessage returns the message shown in place of coordinates, or an empty string
// once a reading is available.
func (p *Presenter) StatusMessage(snap locate.Snapshot) string {
	if snap.Best.IsSet() {
		return ""
	}
	switch {
	case errors.Is(snap.LastError, geobus.ErrDenied), errors.Is(snap.LastError, geobus.ErrDisabled):
		return p.localizer.Get(MsgDisabled)
	case errors.Is(snap.LastError, locate.ErrTimeout):
		return p.localizer.Get(MsgTimeout)
	case snap.LastError != nil:
		return p.localizer.Get(MsgError)
	case snap.Active:
		return p.localizer.Get(MsgSearching)
	default:
		return p.localizer.Get(MsgIdle)
	}
}

// AddressLine returns the formatted address of snap or a placeholder.
func (p *Presenter) AddressLine(snap locate.Snapshot) string {
	addr, ok := snap.Address.Get()
	switch {
	case ok && addr.AddressFound:
		return FormatAddress(addr)
	case snap.GeocodeInFlight:
		return p.localizer.Get(MsgAddressSearch)
	case snap.GeocodeError != nil:
		return p.localizer.Get(MsgAddressError)
	default:
		return p.localizer.Get(MsgAddressNotFound)
	}
}

// RenderRecord renders a saved record as aligned "label: value" lines.
func (p *Presenter) RenderRecord(rec store.Record) string {
	labels := []string{
		p.loc("description"), p.loc("category"), p.loc("latitude"), p.loc("longitude"),
		p.loc("accuracy"), p.loc("address"), p.loc("date"),
	}
	values := []string{
		rec.Description,
		p.localizer.Get(rec.Category),
		fmt.Sprintf("%.8f", rec.Latitude),
		fmt.Sprintf("%.8f", rec.Longitude),
		fmt.Sprintf("%.0f m", rec.Accuracy),
		rec.Address,
		fmt.Sprintf("%s (%s)", p.localizedTime(rec.Date), p.naturalTime(rec.Date)),
	}
	if rec.Address == "" {
		values[5] = p.localizer.Get(MsgAddressNotFound)
	}

	width := labelWidth(labels...) + 1
	lines := make([]string, len(labels))
	for i, label := range labels {
		lines[i] = pad(label+":", width) + " " + values[i]
	}
	return strings.Join(lines, "\n")
}

// FormatAddress returns the address in the form "house street, city, state postcode,
// country".
func FormatAddress(addr geocode.Address) string {
	return addr.Formatted()
}

func (p *Presenter) execute(tpl *template.Template, ctx TemplateContext) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
