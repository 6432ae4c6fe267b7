package enrich

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// tesseractLangCode maps a detected language to the tesseract language pack
// code. English OCR is always available as a fallback.
var tesseractLangCode = map[domain.Language]string{
	domain.LangHindi:   "hin",
	domain.LangTamil:   "tam",
	domain.LangKannada: "kan",
	domain.LangEnglish: "eng",
}

// RunOCR shells out to the tesseract binary, mirroring how the original
// missing binary or non-zero exit is non-fatal: it returns ("", nil) so
// enrichment continues with whatever text it already has; OCR is
// best-effort.
func RunOCR(ctx context.Context, screenshotPath string, lang domain.Language) (string, error) {
	if screenshotPath == "" {
		return "", nil
	}
	if _, err := os.Stat(screenshotPath); err != nil {
		return "", nil
	}
	code, ok := tesseractLangCode[lang]
	if !ok {
		code = "eng"
	}

	cmd := exec.CommandContext(ctx, "tesseract", screenshotPath, "stdout", "-l", code)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", nil
	}
	return strings.TrimSpace(out.String()), nil
}

// OCRText runs OCR with the detected language,
// plus an extra English OCR pass when translit is set, keeping whichever
// result is longer. The caller appends that one text to the cleaned text.
func OCRText(ctx context.Context, screenshotPath string, lang domain.Language, translit bool) string {
	primary, _ := RunOCR(ctx, screenshotPath, lang)
	if !translit {
		return primary
	}
	english, _ := RunOCR(ctx, screenshotPath, domain.LangEnglish)
	if len(english) > len(primary) {
		return english
	}
	return primary
}
