package email

// Email templates in HTML format

// BaseTemplate is the base layout for all emails
const BaseTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            margin: 0;
            padding: 0;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: #0f0f0f;
            color: #ffffff;
        }
        .container {
            max-width: 600px;
            margin: 0 auto;
            padding: 40px 20px;
        }
        .card {
            background: #1a1a1a;
            border-radius: 12px;
            padding: 32px;
            border: 1px solid #2a2a2a;
        }
        .logo {
            text-align: center;
            margin-bottom: 24px;
        }
        .logo h1 {
            font-size: 28px;
            background: linear-gradient(135deg, #f97316 0%, #ec4899 100%);
            -webkit-background-clip: text;
            -webkit-text-fill-color: transparent;
            margin: 0;
        }
        h2 {
            color: #ffffff;
            font-size: 24px;
            margin: 0 0 16px;
        }
        p {
            color: #888888;
            font-size: 16px;
            line-height: 1.6;
            margin: 0 0 16px;
        }
        .btn {
            display: inline-block;
            background: linear-gradient(135deg, #f97316 0%, #ec4899 100%);
            color: #ffffff !important;
            text-decoration: none;
            padding: 14px 28px;
            border-radius: 8px;
            font-weight: 600;
            font-size: 16px;
            margin: 16px 0;
        }
        .footer {
            text-align: center;
            margin-top: 32px;
            color: #666666;
            font-size: 12px;
        }
        .highlight {
            color: #f97316;
            font-weight: 600;
        }
        .info-box {
            background: #252525;
            border-radius: 8px;
            padding: 16px;
            margin: 16px 0;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="card">
            <div class="logo">
                <h1>Pawtrait</h1>
            </div>
            {{.Content}}
        </div>
        <div class="footer">
            <p>© 2026 Pawtrait. All rights reserved.</p>
            <p>You received this email because you have a Pawtrait account.</p>
        </div>
    </div>
</body>
</html>
`

// WelcomeTemplate greets a new account
const WelcomeTemplate = `
<h2>Welcome to Pawtrait!</h2>
<p>Your account is ready and <span class="highlight">{{.Credits}} free credits</span> are waiting for you.</p>
<p>Upload a photo of your pet and pick a style to create the first portrait.</p>
<a href="{{.AppURL}}" class="btn">Create a portrait</a>
`

// CreditsPurchasedTemplate is the payment receipt
const CreditsPurchasedTemplate = `
<h2>Thanks for your purchase</h2>
<p>We received your payment for <strong>{{.ItemName}}</strong>.</p>
<div class="info-box">
    <p><strong>Order:</strong> {{.OrderID}}</p>
    <p><strong>Amount:</strong> {{.Amount}} {{.Currency}}</p>
    {{if .Credits}}<p><strong>Credits added:</strong> {{.Credits}}</p>{{end}}
    <p><strong>Balance:</strong> {{.Balance}} credits</p>
</div>
<a href="{{.AppURL}}" class="btn">Back to Pawtrait</a>
`

// RefundFailedTemplate alerts support about a charged but failed generation
const RefundFailedTemplate = `
<h2>Refund failed</h2>
<p>A generation failed and its credit could not be returned automatically.</p>
<div class="info-box">
    <p><strong>User:</strong> {{.UserID}}</p>
    <p><strong>Generation:</strong> {{.GenerationID}}</p>
    <p><strong>Idempotency key:</strong> {{.RefundKey}}</p>
    <p><strong>Error:</strong> {{.Error}}</p>
</div>
<p>Re-apply the refund with the key above so it cannot be issued twice.</p>
`
