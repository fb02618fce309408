package lyrics

import (
	"fmt"
	"strings"

	"github.com/kalambet/kashi/internal/songs"
)

// trustedSites are the lyrics sites the strict search is limited to.
var trustedSites = []string{"Uta-Net", "Musixmatch", "LyricFind", "J-Lyric", "Utamap"}

// searchQuery is the web search query for a song.
func searchQuery(ref songs.Ref) string {
	return fmt.Sprintf("%s %s 歌詞", ref.Title, ref.Artist)
}

func strictSearchPrompt(ref songs.Ref) string {
	return fmt.Sprintf(`TASK: Find the Japanese lyrics for the song.

SEARCH QUERY:
%s

INSTRUCTIONS:
Only use lyrics published on these sites: %s.

CRITICAL:
1. Extract the lyrics verbatim from the search results.
2. Output the FULL Japanese lyrics text, one lyric line per line.
3. Do not translate. Do not romanize. Keep the original Japanese exactly as published.
4. Do not output markdown or explanations. Just the lyrics.
5. If the lyrics cannot be found on those sites, return "%s".`,
		searchQuery(ref), strings.Join(trustedSites, ", "), Sentinel)
}

func broadSearchPrompt(ref songs.Ref) string {
	return fmt.Sprintf(`TASK: Find the official Japanese lyrics for the song.

SEARCH QUERY:
%s official lyrics

INSTRUCTIONS:
Any reliable source is acceptable.

CRITICAL:
1. Output the FULL official Japanese lyrics text, one lyric line per line.
2. Never invent, paraphrase or fill in lines you did not find.
3. Do not translate. Do not romanize.
4. Do not output markdown or explanations. Just the lyrics.
5. If the official lyrics cannot be found, return "%s".`,
		searchQuery(ref), Sentinel)
}

func recallPrompt(ref songs.Ref) string {
	return fmt.Sprintf(`TASK: Recall the official lyrics for the following Japanese song from your training data.

SONG: %s
ARTIST: %s

INSTRUCTIONS:
1. Output the FULL Japanese lyrics accurately, one lyric line per line.
2. Do not summarize or output only a part.
3. Never fabricate lines you do not know.
4. Do not include markdown code blocks.
5. If you do not know this song, strictly return "%s".`,
		ref.Title, ref.Artist, Sentinel)
}
