package mcs

import "strings"

// Package-to-display-name classification for the Player Name
// characteristic. The table covers the players this system was tuned
// against; anything else falls back to a humanized last package
// segment.
var knownPlayers = map[string]string{
	"com.spotify.music":                     "Spotify",
	"com.google.android.apps.youtube.music": "YouTube Music",
	"com.soundcloud.android":                "SoundCloud",
	"com.pandora.android":                   "Pandora",
	"deezer.android.app":                    "Deezer",
}

// NoMediaPlayerName is the player name served before any media session
// has ever been observed.
const NoMediaPlayerName = "No Media"

// PlayerNameForPackage derives the display name for a media source
// package identifier.
func PlayerNameForPackage(pkg string) string {
	if pkg == "" {
		return NoMediaPlayerName
	}
	if name, ok := knownPlayers[pkg]; ok {
		return name
	}
	return humanizePackage(pkg)
}

// humanizePackage turns "com.example.musicplayer" into "Musicplayer".
func humanizePackage(pkg string) string {
	segment := pkg
	if idx := strings.LastIndex(pkg, "."); idx >= 0 && idx+1 < len(pkg) {
		segment = pkg[idx+1:]
	}
	if segment == "" {
		return NoMediaPlayerName
	}
	return strings.ToUpper(segment[:1]) + segment[1:]
}
