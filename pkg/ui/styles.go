package ui

import (
	lib "github.com/charmbracelet/charm/ui/common"
	te "github.com/muesli/termenv"
)

type StyleFunc func(string) string

var (
	// Row colors
	RowPrimaryFocused     = FuchsiaFg
	RowSecondaryFocused   = DullFuchsiaFg
	RowPrimaryUnfocused   = BrightGrayFg
	RowSecondaryUnfocused = DimBrightGrayFg

	// rows still waiting on content, or whose content failed
	PlaceholderFg = DimNormalFg
	FailedFg      = FaintRedFg

	SectionHeader = NewStyle(lib.NewColorPair("#feda75", "#962fbf"), lib.NewColorPair("#1a1a1a", "#dddddd"), true)
	StatusBar     = NewStyle(lib.NewColorPair("#dddddd", "#1a1a1a"), lib.NewColorPair("#3C3C3C", "#DDDADA"), false)
	StatusAccent  = NewStyle(lib.NewColorPair("#1a1a1a", "#dddddd"), lib.NewColorPair("#04B575", "#04B575"), true)

	NormalFg    = NewFgStyle(lib.NewColorPair("#dddddd", "#1a1a1a"))
	DimNormalFg = NewFgStyle(lib.NewColorPair("#777777", "#A49FA5"))

	BrightGrayFg    = NewFgStyle(lib.NewColorPair("#979797", "#847A85"))
	DimBrightGrayFg = NewFgStyle(lib.NewColorPair("#4D4D4D", "#C2B8C2"))

	GreenFg = NewFgStyle(lib.NewColorPair("#04B575", "#04B575"))

	FuchsiaFg     = NewFgStyle(lib.Fuschia)
	DullFuchsiaFg = NewFgStyle(lib.NewColorPair("#AD58B4", "#F793FF"))

	IndigoFg   = NewFgStyle(lib.Indigo)
	YellowFg   = NewFgStyle(lib.YellowGreen) // renders light green on light backgrounds
	RedFg      = NewFgStyle(lib.Red)
	FaintRedFg = NewFgStyle(lib.FaintRed)
)

// Returns a termenv style with foreground and background options.
func NewStyle(fg, bg lib.ColorPair, bold bool) StyleFunc {
	s := te.Style{}.Foreground(fg.Color()).Background(bg.Color())
	if bold {
		s = s.Bold()
	}
	return s.Styled
}

// Returns a new termenv style with background options only.
func NewFgStyle(c lib.ColorPair) StyleFunc {
	return te.Style{}.Foreground(c.Color()).Styled
}

// MatchStyle is the base style search matches are underlined in.
func MatchStyle() te.Style {
	return te.Style{}.Foreground(lib.Fuschia.Color())
}
