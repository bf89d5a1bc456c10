package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// FormatCPF masks a CPF progressively as 000.000.000-00. Extra digits are dropped.
func FormatCPF(cpf string) string {
	d := digits(cpf)
	if len(d) > 11 {
		d = d[:11]
	}

	var b strings.Builder
	for i, r := range d {
		switch i {
		case 3, 6:
			b.WriteByte('.')
		case 9:
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}

	return b.String()
}

// FormatPhone masks a local phone number as (00) 00000-0000 or (00) 0000-0000.
// A leading 55 country code is stripped.
func FormatPhone(phone string) string {
	d := digits(phone)
	d = strings.TrimPrefix(d, "55")
	if len(d) > 11 {
		d = d[:11]
	}

	switch {
	case len(d) > 10:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	case len(d) > 6:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	case len(d) > 2:
		return "(" + d[:2] + ") " + d[2:]
	case len(d) > 0:
		return "(" + d
	}

	return d
}

// FormatMoney renders an amount as Brazilian reais, e.g. R$ 1.234,50.
func FormatMoney(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}

	fixed := v.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	return sign + "R$ " + b.String() + "," + frac
}
