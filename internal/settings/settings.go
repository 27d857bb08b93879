// Package settings holds the static map configuration served to the page.
package settings

import "libraryfinder/internal/geo"

const (
	DefaultZoom = 12
	LocateZoom  = 12
)

type ContainerStyle struct {
	Width  string `json:"width"`
	Height string `json:"height"`
}

type MapOptions struct {
	Styles           []MapStyle `json:"styles"`
	DisableDefaultUI bool       `json:"disableDefaultUI"`
	ZoomControl      bool       `json:"zoomControl"`
}

// Map bundles everything the widget needs at load.
type Map struct {
	Container ContainerStyle `json:"container"`
	Center    geo.Coordinate `json:"center"`
	Zoom      int            `json:"zoom"`
	Options   MapOptions     `json:"options"`
}

func Container() ContainerStyle {
	return ContainerStyle{Width: "100%", Height: "100vh"}
}

// Center is Muncie, Indiana.
func Center() geo.Coordinate {
	return geo.Coordinate{Lat: 40.19, Lng: -85.40}
}

func Options() MapOptions {
	return MapOptions{
		Styles:           Styles(),
		DisableDefaultUI: true,
		ZoomControl:      true,
	}
}

func Default() Map {
	return Map{
		Container: Container(),
		Center:    Center(),
		Zoom:      DefaultZoom,
		Options:   Options(),
	}
}
