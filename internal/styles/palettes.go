package styles

// DefaultTheme is the baseline palette.
var DefaultTheme = Theme{
	Name: "default",
	Tokens: ThemeTokens{
		Text:      "#E6EDF3",
		TextMuted: "#8B9AAE",
		Accent:    "#5B8DEF",
		Success:   "#3FB950",
		Warning:   "#D29922",
		Error:     "#F85149",
		Info:      "#58A6FF",
	},
}

// HighContrastTheme favors legibility on dim or projected terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Tokens: ThemeTokens{
		Text:      "#FFFFFF",
		TextMuted: "#D0D0D0",
		Accent:    "#00FFFF",
		Success:   "#00FF00",
		Warning:   "#FFFF00",
		Error:     "#FF0000",
		Info:      "#00AFFF",
	},
}
