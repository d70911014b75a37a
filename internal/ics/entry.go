package ics

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"discordcal/internal/model"
)

const (
	// DefaultDescription is used for events without a description.
	DefaultDescription = "No description provided."

	// UnknownChannel is shown when a channel name could not be resolved.
	UnknownChannel = "Unknown Channel"

	discordBaseURL = "https://discord.com"

	// maxLineOctets is the content-line limit, excluding the CRLF.
	maxLineOctets = 75
)

// EntryRenderer renders single VEVENT blocks.
type EntryRenderer struct {
	Formatter *DateFormatter

	// Stamp is written as DTSTAMP on every entry.
	Stamp time.Time
}

// Render returns the unfolded content lines of one VEVENT for occurrence
// occ of ev. index is the occurrence's position within ev's expansion and
// feeds the UID of non-exception slots.
func (r *EntryRenderer) Render(ev model.Event, occ model.Occurrence, index int, channels map[string]string, guildID string) []string {
	discriminator := ev.ID + "-" + strconv.Itoa(index)
	if occ.IsException {
		discriminator = ev.ID + "-" + occ.ExceptionID
	}
	uid := EventUID(occ.StartText, occ.EndText, ev.Name, discriminator)

	description := ev.Description
	if description == "" {
		description = DefaultDescription
	}

	return []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + r.Stamp.UTC().Format(utcLayout),
		r.dateProperty("DTSTART", occ.StartText),
		r.dateProperty("DTEND", occ.EndText),
		"SUMMARY:" + EscapeText(ev.Name),
		"DESCRIPTION:" + EscapeText(description),
		"LOCATION:" + EscapeText(eventLocation(ev, channels)),
		"URL:" + eventURL(ev, guildID),
		"END:VEVENT",
	}
}

func (r *EntryRenderer) dateProperty(name, value string) string {
	if r.Formatter != nil && r.Formatter.Named() {
		return name + ";TZID=" + r.Formatter.Zone() + ":" + value
	}
	return name + ":" + value
}

// eventLocation prefers the free-text location, then the channel name.
func eventLocation(ev model.Event, channels map[string]string) string {
	if ev.Location != "" {
		return ev.Location
	}
	if ev.ChannelID == "" {
		return ""
	}
	name, ok := channels[ev.ChannelID]
	if !ok || name == "" {
		name = UnknownChannel
	}
	return "Channel: " + name
}

// eventURL links back to the channel the event happens in, or to the event
// page for external events.
func eventURL(ev model.Event, guildID string) string {
	if ev.ChannelID != "" {
		return discordBaseURL + "/channels/" + guildID + "/" + ev.ChannelID
	}
	return discordBaseURL + "/events/" + guildID + "/" + ev.ID
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", "",
)

// EscapeText escapes a TEXT property value.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// FoldLine splits a content line into chunks of at most 75 octets. Every
// chunk after the first starts with a single space. Multi-byte characters
// are never split.
func FoldLine(line string) []string {
	if len(line) <= maxLineOctets {
		return []string{line}
	}

	var out []string
	limit := maxLineOctets
	prefix := ""
	for len(line) > 0 {
		if len(line) <= limit {
			out = append(out, prefix+line)
			break
		}
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			// No rune boundary in the window: the text is not valid UTF-8.
			cut = limit
		}
		out = append(out, prefix+line[:cut])
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		prefix = " "
		limit = maxLineOctets - 1
	}
	return out
}
