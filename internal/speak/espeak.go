package speak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
aide_espeak_say(const char *text, const char *lang)
{
	if (!text)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{
		espeak_Terminate();
		return -3;
	}

	espeak_Synth(text, strlen(text) + 1, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"
)

// SystemVoice speaks through espeak-ng with synchronous playback. Text
// and language only; emotion, pacing and cloning options are ignored.
type SystemVoice struct {
	defaultLang string
}

func NewSystemVoice(defaultLang string) *SystemVoice {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &SystemVoice{defaultLang: defaultLang}
}

func (v *SystemVoice) Name() string { return "system" }

func (v *SystemVoice) Speak(_ context.Context, text string, opts Options) error {
	if text == "" {
		return nil
	}
	lang := opts.Language
	if lang == "" {
		lang = v.defaultLang
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.aide_espeak_say(ctext, clang); rc != 0 {
		return fmt.Errorf("espeak failed: %d", int(rc))
	}
	return nil
}
