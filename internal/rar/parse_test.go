package rar

import (
	"testing"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"github.com/stretchr/testify/assert"
)

const lookupPageFixture = `
<html><body>
<form name="frm" method="post" action="rarpol.asp">
  <input type="text" name="nr_id" value="">
  <input type="text" name="verif_cod" value="">
  <input type="hidden" name="sesiune" value="abc123">
  <input type="submit" name="trimite" value="">
</form>
<img id="imgVerf" src="verifcod.asp?id=42">
</body></html>`

func TestParseLookupPage(t *testing.T) {
	page, err := parseLookupPage(lookupPageFixture)
	assert.NoError(t, err)
	assert.Equal(t, "verifcod.asp?id=42", page.captchaSrc)
	assert.Equal(t, "rarpol.asp", page.action)
	assert.Equal(t, "abc123", page.fields["sesiune"])

	_, hasVin := page.fields["nr_id"]
	assert.True(t, hasVin)
}

func TestParseLookupPageMissingCaptcha(t *testing.T) {
	_, err := parseLookupPage(`<html><body><form name="frm"></form></body></html>`)
	assert.Error(t, err)
}

func TestParseLookupPageFallsBackToFirstForm(t *testing.T) {
	body := `
<html><body>
<form action="other.asp"><input name="nr_id" value=""></form>
<img id="imgVerf" src="verifcod.asp">
</body></html>`

	page, err := parseLookupPage(body)
	assert.NoError(t, err)
	assert.Equal(t, "other.asp", page.action)
}

func TestBuildFormData(t *testing.T) {
	page := &lookupPage{
		fields: map[string]string{
			"nr_id":     "",
			"verif_cod": "",
			"sesiune":   "abc123",
			"trimite":   "",
		},
	}

	form := buildFormData(page, "wvwzzz1jzxw000001", "1234")

	assert.Equal(t, "WVWZZZ1JZXW000001", form.Get("nr_id"))
	assert.Equal(t, "1234", form.Get("verif_cod"))
	assert.Equal(t, "abc123", form.Get("sesiune"))
	assert.Equal(t, "Caută", form.Get("trimite"))
}

func TestBuildFormDataLegacyCaptchaField(t *testing.T) {
	page := &lookupPage{
		fields: map[string]string{
			"nr_id":     "",
			"antirobot": "",
		},
	}

	form := buildFormData(page, "VIN12345", "9876")
	assert.Equal(t, "9876", form.Get("antirobot"))
	assert.Empty(t, form.Get("verif_cod"))
}

func TestBuildFormDataNoCaptchaFieldOnPage(t *testing.T) {
	// a form carrying neither captcha field still gets verif_cod set
	page := &lookupPage{
		fields: map[string]string{
			"nr_id": "",
		},
	}

	form := buildFormData(page, "VIN12345", "4321")
	assert.Equal(t, "4321", form.Get("verif_cod"))
	assert.Equal(t, "VIN12345", form.Get("nr_id"))
}

func TestBuildFormDataKeepsPrefilledSubmit(t *testing.T) {
	page := &lookupPage{
		fields: map[string]string{
			"verif_cod": "",
			"trimite":   "Verifica",
		},
	}

	form := buildFormData(page, "VIN12345", "1111")
	assert.Equal(t, "Verifica", form.Get("trimite"))
}

func TestIsWrongCaptcha(t *testing.T) {
	assert.True(t, isWrongCaptcha("<html>Codul de verificare a fost copiat incorect!</html>"))
	assert.False(t, isWrongCaptcha("<html>Inspecția tehnică este valabilă până la 4-mai-2026</html>"))
}

func TestParseResultValid(t *testing.T) {
	body := `<html><body>
<div id="rezbgcolor">
  Vehiculul cu seria de sasiu WVWZZZ1JZXW000001 are inspecția tehnică
  periodică valabilă până la 4-mai-2026.
</div>
</body></html>`

	status, expiration := parseResult(body)
	assert.Equal(t, models.StatusValid, status)
	assert.Equal(t, "2026-05-04", expiration)
}

func TestParseResultNotFound(t *testing.T) {
	body := `<html><body>
<div id="rezbgcolor">Nu a fost găsită nicio înregistrare pentru seria introdusă.</div>
</body></html>`

	status, expiration := parseResult(body)
	assert.Equal(t, models.StatusNotFound, status)
	assert.Equal(t, models.UnknownExpiration, expiration)
}

func TestParseResultLegacyLayout(t *testing.T) {
	body := `<html><body>
<div id="rezbgcolor">Data expirării: 7.3.2025</div>
</body></html>`

	status, expiration := parseResult(body)
	assert.Equal(t, models.StatusValid, status)
	assert.Equal(t, "2025-03-07", expiration)
}

func TestParseResultWithoutResultDiv(t *testing.T) {
	// layout change: the div is gone but the text survives
	body := `<html><body><p>valabilă până la 12-dec-2026</p></body></html>`

	status, expiration := parseResult(body)
	assert.Equal(t, models.StatusValid, status)
	assert.Equal(t, "2026-12-12", expiration)
}

func TestParseResultValidWithoutDate(t *testing.T) {
	status, expiration := parseResult(`<div id="rezbgcolor">ceva neașteptat</div>`)
	assert.Equal(t, models.StatusValid, status)
	assert.Equal(t, models.UnknownExpiration, expiration)
}

func TestParseRomanianDate(t *testing.T) {
	cases := map[string]string{
		"4-mai-2026":   "2026-05-04",
		"15-ian-2025":  "2025-01-15",
		"1-sept-2024":  "2024-09-01",
		"28-feb-2027":  "2027-02-28",
		"10-XXXX-2025": "2025-01-10", // unknown month falls back to january
	}

	for raw, expected := range cases {
		got, err := parseRomanianDate(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, expected, got, raw)
	}
}

func TestParseRomanianDateBadLayout(t *testing.T) {
	_, err := parseRomanianDate("mai-2026")
	assert.Error(t, err)
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "1234", digitsOnly(" 1 2a3-4 "))
	assert.Equal(t, "", digitsOnly("abc"))
}
