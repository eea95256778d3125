package email

// BaseTemplate is the layout every notification is rendered into.
const BaseTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f5f6f8; color: #1f2430; }
        .container { max-width: 600px; margin: 0 auto; padding: 40px 20px; }
        .card { background: #ffffff; border-radius: 12px; padding: 32px; border: 1px solid #e3e6eb; }
        h2 { font-size: 22px; margin: 0 0 16px; }
        p { color: #4a5160; font-size: 16px; line-height: 1.6; margin: 0 0 16px; }
        .amount { font-size: 28px; font-weight: 700; color: #1f2430; }
        .info-box { background: #f0f2f5; border-radius: 8px; padding: 16px; margin: 16px 0; }
        .btn { display: inline-block; background: #2f6fed; color: #ffffff !important; text-decoration: none; padding: 12px 24px; border-radius: 8px; font-weight: 600; }
        .footer { text-align: center; margin-top: 32px; color: #8a90a0; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="card">
            {{.Content}}
        </div>
        <div class="footer">
            <p>You are receiving this email because you earn commissions on PartnerLink.</p>
        </div>
    </div>
</body>
</html>
`

const PayoutSentTemplate = `
<h2>Your payout is on its way</h2>
<p>Hi {{.Name}}, we sent you</p>
<p class="amount">{{.Amount}}</p>
<div class="info-box">
    <p><strong>Method:</strong> {{.Method}}</p>
    {{if .Reference}}<p><strong>Reference:</strong> {{.Reference}}</p>{{end}}
    <p><strong>Commissions:</strong> {{.CommissionCount}}</p>
</div>
<a href="{{.DashboardURL}}" class="btn">View payouts</a>
`

const PayoutFailedTemplate = `
<h2>We could not complete your payout</h2>
<p>Hi {{.Name}}, a payout of <strong>{{.Amount}}</strong> via {{.Method}} did not go through.</p>
{{if .Reason}}
<div class="info-box">
    <p><strong>Reason:</strong> {{.Reason}}</p>
</div>
{{end}}
<p>The commissions are back in your available balance and will be included in the next payout. Please check your payout details.</p>
<a href="{{.DashboardURL}}" class="btn">Update payout details</a>
`

const GiftCardDeliveredTemplate = `
<h2>Your gift card has been issued</h2>
<p>Hi {{.Name}}, your {{.CardType}} gift card worth <strong>{{.Amount}}</strong> has been delivered to this address.</p>
<a href="{{.DashboardURL}}" class="btn">View redemptions</a>
`

const GiftCardFailedTemplate = `
<h2>Gift card redemption failed</h2>
<p>Hi {{.Name}}, we could not issue your {{.CardType}} gift card worth <strong>{{.Amount}}</strong>.</p>
{{if .Reason}}<div class="info-box"><p><strong>Reason:</strong> {{.Reason}}</p></div>{{end}}
<p>The amount has been returned to your available balance.</p>
<a href="{{.DashboardURL}}" class="btn">Try again</a>
`
