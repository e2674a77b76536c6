// Package diagnostic предлагает текст диагностики по заметкам техника.
package diagnostic

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fallback возвращается, если ни одна группа ключевых слов не найдена.
const Fallback = "Diagnostic à compléter suite à l'analyse des paramètres relevés."

type rule struct {
	keywords []string
	sentence string
}

// Порядок правил определяет порядок фраз в результате.
var rules = []rule{
	{
		keywords: []string{"fuite", "manque gaz"},
		sentence: "Défaut d'étanchéité du circuit frigorifique détecté.",
	},
	{
		keywords: []string{"givr", "glace"},
		sentence: "Givrage anormal de l'évaporateur constaté - possible obstruction du dégivrage ou manque de fluide.",
	},
	{
		keywords: []string{"bruit", "vibr"},
		sentence: "Anomalie mécanique détectée au niveau du compresseur ou des ventilateurs.",
	},
	{
		keywords: []string{"chaud", "temp"},
		sentence: "Température de fonctionnement hors plage nominale.",
	},
	{
		keywords: []string{"électr", "electr", "disjonct"},
		sentence: "Défaut électrique identifié - vérification des protections nécessaire.",
	},
}

// Suggest возвращает предлагаемую диагностику для заметок по прибытии.
func Suggest(notes string) string {
	lower := cases.Lower(language.French).String(notes)

	var matched []string
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			matched = append(matched, r.sentence)
		}
	}

	if len(matched) == 0 {
		return Fallback
	}
	return strings.Join(matched, " ")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
