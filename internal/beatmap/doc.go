// Package beatmap converts Beat Saber level documents into the line-oriented
// timeline format read by the Neos playback client.
//
// The pipeline has four stages. DetectGeneration classifies a difficulty
// document as schema v2 or v3. Normalize flattens the generation-specific
// event arrays into a sequence of typed events (Note, Obstacle,
// BurstSliderHead, BurstSliderTail, Ignored). EncodeTimeline stable-sorts that
// sequence by time and renders one text line per playable event:
//
//	N,<beat>,<col>,<row>,<color>,<direction>,<angle>
//	O,<beat>,<col>,<row>,<width>,<height>,<duration>
//
// Build walks the info document's characteristic and difficulty sets,
// resolves their names against static tables, drops duplicates (first wins),
// and embeds each difficulty's encoded timeline into a MapFile.
package beatmap
