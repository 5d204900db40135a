package data

import (
	"path/filepath"
	"strings"
)

type ContentType string

const (
	// Uniform type identifiers used by predicates built with the runner
	ContentTypeFolder      ContentType = "public.folder"
	ContentTypeApplication ContentType = "com.apple.application-bundle"

	ContentTypeTextPlain         ContentType = "text/plain"
	ContentTypeTextMarkdown      ContentType = "text/markdown"
	ContentTypeTextHTML          ContentType = "text/html"
	ContentTypeTextCSS           ContentType = "text/css"
	ContentTypeTextJavaScript    ContentType = "text/javascript"
	ContentTypeTextCSV           ContentType = "text/csv"
	ContentTypeTextGo            ContentType = "text/x-go"
	ContentTypeImageJPEG         ContentType = "image/jpeg"
	ContentTypeImagePNG          ContentType = "image/png"
	ContentTypeImageGIF          ContentType = "image/gif"
	ContentTypeImageWebP         ContentType = "image/webp"
	ContentTypeImageSVGXML       ContentType = "image/svg+xml"
	ContentTypeAudioMpeg         ContentType = "audio/mpeg"
	ContentTypeAudioWAV          ContentType = "audio/wav"
	ContentTypeAudioOGG          ContentType = "audio/ogg"
	ContentTypeVideoMP4          ContentType = "video/mp4"
	ContentTypeVideoWebM         ContentType = "video/webm"
	ContentTypeVideoQuickTime    ContentType = "video/quicktime"
	ContentTypeApplicationPDF    ContentType = "application/pdf"
	ContentTypeApplicationZip    ContentType = "application/zip"
	ContentTypeApplicationGZip   ContentType = "application/gzip"
	ContentTypeApplicationXTar   ContentType = "application/x-tar"
	ContentTypeApplicationJSON   ContentType = "application/json"
	ContentTypeApplicationXML    ContentType = "application/xml"
	ContentTypeApplicationYAML   ContentType = "application/yaml"
	ContentTypeApplicationStream ContentType = "application/octet-stream"
)

// ExtensionToContentType maps file extensions to content types
var ExtensionToContentType = map[string]ContentType{
	".txt":  ContentTypeTextPlain,
	".md":   ContentTypeTextMarkdown,
	".html": ContentTypeTextHTML,
	".htm":  ContentTypeTextHTML,
	".css":  ContentTypeTextCSS,
	".js":   ContentTypeTextJavaScript,
	".csv":  ContentTypeTextCSV,
	".go":   ContentTypeTextGo,
	".jpg":  ContentTypeImageJPEG,
	".jpeg": ContentTypeImageJPEG,
	".png":  ContentTypeImagePNG,
	".gif":  ContentTypeImageGIF,
	".webp": ContentTypeImageWebP,
	".svg":  ContentTypeImageSVGXML,
	".mp3":  ContentTypeAudioMpeg,
	".wav":  ContentTypeAudioWAV,
	".ogg":  ContentTypeAudioOGG,
	".mp4":  ContentTypeVideoMP4,
	".webm": ContentTypeVideoWebM,
	".mov":  ContentTypeVideoQuickTime,
	".pdf":  ContentTypeApplicationPDF,
	".zip":  ContentTypeApplicationZip,
	".gz":   ContentTypeApplicationGZip,
	".tar":  ContentTypeApplicationXTar,
	".json": ContentTypeApplicationJSON,
	".xml":  ContentTypeApplicationXML,
	".yaml": ContentTypeApplicationYAML,
	".yml":  ContentTypeApplicationYAML,
	".app":  ContentTypeApplication,
}

// GetContentType returns the content type for the extension of key
func GetContentType(key string) ContentType {
	ext := strings.ToLower(filepath.Ext(key))

	if contentType, exists := ExtensionToContentType[ext]; exists {
		return contentType
	}

	// Default to octet-stream for unknown types
	return ContentTypeApplicationStream
}
