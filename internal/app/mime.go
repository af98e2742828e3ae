package app

import (
	"log"
	"mime"
)

// Minimal container images may lack /etc/mime.types; the embedded stylesheet
// and validation script must still be served with correct Content-Types.
func init() {
	ensureMimeType(".css", "text/css; charset=utf-8")
	ensureMimeType(".js", "text/javascript; charset=utf-8")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: register %s mime type: %v", ext, err)
	}
}
