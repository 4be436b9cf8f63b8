package loginform

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgLogout         = "login.form.logout"
	msgLogin          = "login.form.login"
	msgEmail          = "login.form.email"
	msgSubmit         = "login.form.submit"
	msgLoading        = "login.form.loading"
	msgUser           = "login.form.user"
	msgSuccessTitle   = "login.form.success.title"
	msgSuccessMessage = "login.form.success.message"
	msgError          = "login.form.error"
)

var defaultMessages = map[string]string{
	msgLogout:         "Logout",
	msgLogin:          "Login",
	msgEmail:          "Email",
	msgSubmit:         "Send me magic link",
	msgLoading:        "Sending...",
	msgUser:           "%s",
	msgSuccessTitle:   "Email sent",
	msgSuccessMessage: "Please check your mail box (%s) and click magic link to login",
	msgError:          "Login failed: %s",
}

var translations = map[language.Tag]map[string]string{
	language.English: defaultMessages,
	language.Polish: {
		msgLogout:         "Wyloguj",
		msgLogin:          "Logowanie",
		msgEmail:          "Email",
		msgSubmit:         "Wyślij magiczny link",
		msgLoading:        "Wysyłanie...",
		msgUser:           "%s",
		msgSuccessTitle:   "Email wysłany",
		msgSuccessMessage: "Sprawdź skrzynkę (%s) i kliknij magiczny link, aby się zalogować",
		msgError:          "Logowanie nie powiodło się: %s",
	},
}

var (
	supported = []language.Tag{language.English, language.Polish}
	matcher   = language.NewMatcher(supported)
	messages  = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range translations {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// NewPrinter returns a printer for the closest supported language to locale.
func NewPrinter(locale string) *message.Printer {
	tag, _ := language.MatchStrings(matcher, locale)
	base, _ := tag.Base()
	for _, t := range supported {
		if b, _ := t.Base(); b == base {
			tag = t
			break
		}
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}

func text(p *message.Printer, key string, args ...any) string {
	return p.Sprintf(message.Key(key, defaultMessages[key]), args...)
}
