// Package mapview describes what the browser map engine is configured
// with: theme, initial camera, hosted style, controls and data layers.
package mapview

import (
	"net/url"

	"github.com/joeblew999/plat-bcat/internal/config"
)

// ViewState is the initial camera. The engine owns it after mount.
type ViewState struct {
	Latitude  float64  `json:"latitude" doc:"Initial center latitude" example:"40"`
	Longitude float64  `json:"longitude" doc:"Initial center longitude" example:"-100"`
	Zoom      float64  `json:"zoom" doc:"Initial zoom" example:"3.5"`
	Pitch     *float64 `json:"pitch,omitempty" doc:"Initial pitch in degrees" example:"45"`
}

type ControlKind string

const (
	Geolocate  ControlKind = "geolocate"
	Navigation ControlKind = "navigation"
	Scale      ControlKind = "scale"
	Fullscreen ControlKind = "fullscreen"
)

type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// Control is a named map widget. Position empty means the engine default.
type Control struct {
	Kind     ControlKind `json:"kind" enum:"geolocate,navigation,scale,fullscreen" doc:"Widget"`
	Position Position    `json:"position,omitempty" doc:"Corner; empty for engine default"`
	Unit     string      `json:"unit,omitempty" doc:"Scale unit (scale only)" example:"imperial"`
}

type Palette struct {
	Main         string `json:"main" example:"#00835D"`
	Light        string `json:"light" example:"#A3E2B5"`
	Dark         string `json:"dark" example:"#26535C"`
	ContrastText string `json:"contrastText" example:"white"`
}

type Theme struct {
	FontFamily string  `json:"fontFamily" example:"Montserrat"`
	Primary    Palette `json:"primary"`
}

// DefaultTheme is the Rural Innovation palette used by both views.
func DefaultTheme() Theme {
	return Theme{
		FontFamily: "Montserrat",
		Primary: Palette{
			Main:         "#00835D",
			Light:        "#A3E2B5",
			Dark:         "#26535C",
			ContrastText: "white",
		},
	}
}

// Size is a CSS width/height pair for the map container.
type Size struct {
	Width  string `json:"width" example:"600px"`
	Height string `json:"height" example:"400px"`
}

// View is the full engine configuration of one page.
type View struct {
	Title       string    `json:"title"`
	Version     string    `json:"version"`
	Theme       Theme     `json:"theme"`
	AccessToken string    `json:"accessToken" doc:"Map engine access token"`
	StyleURL    string    `json:"styleUrl" doc:"Hosted style URL"`
	ViewState   ViewState `json:"initialViewState"`
	Controls    []Control `json:"controls"`
	Size        Size      `json:"size"`
}

const (
	shellStyleOwner = "ruralinno"
	shellStyleID    = "cl010e7b7001p15pe3l0306hv"
	panelStyleOwner = "mapbox"
	panelStyleID    = "light-v9"
)

// StyleURL builds a hosted Mapbox style URL carrying the access token.
func StyleURL(owner, id, token string) string {
	u := url.URL{
		Scheme:   "https",
		Host:     "api.mapbox.com",
		Path:     "/styles/v1/" + owner + "/" + id,
		RawQuery: url.Values{"access_token": {token}}.Encode(),
	}
	return u.String()
}

// NewShell is the Viewport Shell: a continental view with no data layers.
func NewShell(cfg config.Config) View {
	pitch := 45.0
	return View{
		Title:       "BCAT Map",
		Version:     cfg.AppVersion,
		Theme:       DefaultTheme(),
		AccessToken: cfg.MapboxToken,
		StyleURL:    StyleURL(shellStyleOwner, shellStyleID, cfg.MapboxToken),
		ViewState:   ViewState{Latitude: 40, Longitude: -100, Zoom: 3.5, Pitch: &pitch},
		Controls: []Control{
			{Kind: Geolocate, Position: TopRight},
			{Kind: Navigation, Position: TopRight},
			{Kind: Scale, Position: BottomLeft, Unit: "imperial"},
		},
		Size: Size{Width: "600px", Height: "400px"},
	}
}

// NewPanel is the Data Layer Panel view, centered on Tennessee.
func NewPanel(cfg config.Config) View {
	return View{
		Title:       "BCAT Data Layers",
		Version:     cfg.AppVersion,
		Theme:       DefaultTheme(),
		AccessToken: cfg.MapboxToken,
		StyleURL:    StyleURL(panelStyleOwner, panelStyleID, cfg.MapboxToken),
		ViewState:   ViewState{Latitude: 35.562, Longitude: -86.503, Zoom: 7},
		Controls: []Control{
			{Kind: Geolocate, Position: TopLeft},
			{Kind: Fullscreen, Position: TopLeft},
			{Kind: Navigation, Position: TopLeft},
			{Kind: Scale},
		},
		Size: Size{Width: "100%", Height: "100vh"},
	}
}
