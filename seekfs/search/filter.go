package search

import "strings"

// FileKind is a coarse result filter applied by consumers after
// ranking; it never affects scoring.
type FileKind int

const (
	KindAll FileKind = iota
	KindFilesOnly
	KindFoldersOnly
	KindDocuments
	KindImages
	KindVideos
	KindAudio
)

var kindExtensions = map[FileKind][]string{
	KindDocuments: {"doc", "docx", "txt", "pdf", "xls", "xlsx", "ppt", "pptx", "md"},
	KindImages:    {"jpg", "jpeg", "png", "gif", "bmp", "svg", "webp", "ico"},
	KindVideos:    {"mp4", "avi", "mkv", "mov", "wmv", "flv", "webm"},
	KindAudio:     {"mp3", "wav", "flac", "aac", "ogg", "wma", "m4a"},
}

// Filter narrows a ranked result set by file kind, an explicit
// extension, and hidden-entry visibility. Order is preserved.
func Filter(results []Result, kind FileKind, extension string, showHidden bool) []Result {
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	if kind == KindAll && extension == "" && showHidden {
		return results
	}

	out := results[:0:0]
	for _, r := range results {
		if !showHidden && r.Entry.IsHidden {
			continue
		}
		if kind == KindFoldersOnly && !r.Entry.IsDir {
			continue
		}
		if kind == KindFilesOnly && r.Entry.IsDir {
			continue
		}
		if !r.Entry.IsDir {
			ext := extOf(r.Entry.NameLower)
			if exts, ok := kindExtensions[kind]; ok && !contains(exts, ext) {
				continue
			}
			if extension != "" && ext != extension {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func extOf(nameLower string) string {
	if i := strings.LastIndexByte(nameLower, '.'); i >= 0 {
		return nameLower[i+1:]
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
