package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec string
		mod  Modifier
		want Chord
	}{
		{"Ctrl+Tab", ModCtrl, Chord{Mod: ModCtrl, Key: "tab"}},
		{"Ctrl+Shift+Tab", ModCtrl, Chord{Mod: ModCtrl | ModShift, Key: "tab"}},
		{"Mod+T", ModCtrl, Chord{Mod: ModCtrl, Key: "t"}},
		{"Mod+T", ModMeta, Chord{Mod: ModMeta, Key: "t"}},
		{"Mod++", ModCtrl, Chord{Mod: ModCtrl, Key: "+"}},
		{"Ctrl+Plus", ModCtrl, Chord{Mod: ModCtrl, Key: "+"}},
		{"Mod+-", ModCtrl, Chord{Mod: ModCtrl, Key: "-"}},
		{"Esc", ModCtrl, Chord{Key: "escape"}},
		{"Escape", ModCtrl, Chord{Key: "escape"}},
		{"+", ModCtrl, Chord{Key: "+"}},
		{"cmd+alt+k", ModCtrl, Chord{Mod: ModMeta | ModAlt, Key: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec, tt.mod)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("", ModCtrl)
	assert.ErrorIs(t, err, ErrEmptyChord)

	_, err = Parse("Ctrl+", ModCtrl)
	assert.ErrorIs(t, err, ErrInvalidChord)

	_, err = Parse("Hyper+T", ModCtrl)
	assert.ErrorIs(t, err, ErrUnknownPrefix)

	assert.Panics(t, func() { MustParse("Bogus+X", ModCtrl) })
}

func TestChordString(t *testing.T) {
	assert.Equal(t, "Ctrl+Shift+Tab", MustParse("ctrl+shift+tab", ModCtrl).String())
	assert.Equal(t, "Meta+T", MustParse("Mod+t", ModMeta).String())
	assert.Equal(t, "Escape", MustParse("esc", ModCtrl).String())
	assert.Equal(t, "Ctrl++", MustParse("Ctrl++", ModCtrl).String())
}

func TestEventChord(t *testing.T) {
	assert.Equal(t, Chord{Mod: ModCtrl, Key: "+"}, Event{Key: "+", Ctrl: true, Shift: true}.Chord())
	assert.Equal(t, Chord{Mod: ModCtrl | ModShift, Key: "tab"}, Event{Key: "Tab", Ctrl: true, Shift: true}.Chord())
	assert.Equal(t, Chord{Mod: ModShift, Key: "a"}, Event{Key: "A", Shift: true}.Chord())
	assert.Equal(t, Chord{Mod: ModAlt | ModMeta, Key: "escape"}, Event{Key: "Esc", Alt: true, Meta: true}.Chord())
}

func TestModifierString(t *testing.T) {
	assert.Equal(t, "", ModNone.String())
	assert.Equal(t, "Ctrl+Alt+Shift+Meta", (ModCtrl | ModAlt | ModShift | ModMeta).String())
	assert.True(t, ModCtrl.With(ModShift).Has(ModShift))
	assert.False(t, (ModCtrl | ModShift).Without(ModShift).Has(ModShift))
}
