package furigana

import "fmt"

func annotatePrompt(raw string) string {
	return fmt.Sprintf(`TASK: Convert the following Japanese lyrics into HTML with Furigana.

INPUT LYRICS:
%s

RULES:
1. Wrap EVERY Kanji (or run of Kanji) in <ruby>Kanji<rt>Kana</rt></ruby>.
2. Use the reading sung in the song, e.g. <ruby>明日<rt>あした</rt></ruby>, <ruby>運命<rt>さだめ</rt></ruby>.
3. Keep every line. Use <br/> for line breaks.
4. Do not change, translate or add any lyric text.
5. Output ONLY the HTML. No markdown, no explanations.

EXAMPLE OUTPUT:
<ruby>私<rt>わたし</rt></ruby>は<ruby>今<rt>いま</rt></ruby><br/><ruby>空<rt>そら</rt></ruby>を<ruby>見<rt>み</rt></ruby>る`, raw)
}
