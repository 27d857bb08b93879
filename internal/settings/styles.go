package settings

type StyleRule struct {
	Color      string  `json:"color,omitempty"`
	Visibility string  `json:"visibility,omitempty"`
	Saturation int     `json:"saturation,omitempty"`
	Lightness  int     `json:"lightness,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
}

// MapStyle mirrors google.maps.MapTypeStyle.
type MapStyle struct {
	FeatureType string      `json:"featureType,omitempty"`
	ElementType string      `json:"elementType,omitempty"`
	Stylers     []StyleRule `json:"stylers"`
}

// Styles returns a muted base map so library markers stand out.
func Styles() []MapStyle {
	return []MapStyle{
		{ElementType: "geometry", Stylers: []StyleRule{{Color: "#f5f5f5"}}},
		{ElementType: "labels.icon", Stylers: []StyleRule{{Visibility: "off"}}},
		{ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#616161"}}},
		{ElementType: "labels.text.stroke", Stylers: []StyleRule{{Color: "#f5f5f5"}}},
		{FeatureType: "administrative.land_parcel", ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#bdbdbd"}}},
		{FeatureType: "poi", ElementType: "geometry", Stylers: []StyleRule{{Color: "#eeeeee"}}},
		{FeatureType: "poi", ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#757575"}}},
		{FeatureType: "poi.park", ElementType: "geometry", Stylers: []StyleRule{{Color: "#e5e5e5"}}},
		{FeatureType: "road", ElementType: "geometry", Stylers: []StyleRule{{Color: "#ffffff"}}},
		{FeatureType: "road.arterial", ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#757575"}}},
		{FeatureType: "road.highway", ElementType: "geometry", Stylers: []StyleRule{{Color: "#dadada"}}},
		{FeatureType: "road.local", ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#9e9e9e"}}},
		{FeatureType: "transit", Stylers: []StyleRule{{Visibility: "off"}}},
		{FeatureType: "water", ElementType: "geometry", Stylers: []StyleRule{{Color: "#c9c9c9"}}},
		{FeatureType: "water", ElementType: "labels.text.fill", Stylers: []StyleRule{{Color: "#9e9e9e"}}},
	}
}
